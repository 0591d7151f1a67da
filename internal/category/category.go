// Package category 定义了固定的文档分类集合，以及基于关键词的自动分类与用户输入归一化。
package category

import (
	"regexp"
	"strings"
)

// Other 是无法归类时使用的兜底分类。
const Other = "other"

// Category 描述一个文档分类。Priority 越小越重要，自动分类时得分按 1/Priority 加权。
type Category struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Priority    int      `json:"-"`
	Keywords    []string `json:"-"`
}

// categories 的顺序即得分相同时的优先顺序。
var categories = []Category{
	{Name: "invoice", DisplayName: "Invoice", Description: "Bills, invoices, and purchase receipts", Priority: 2, Keywords: []string{
		"invoice", "bill", "receipt", "purchase", "payment due", "amount due",
		"subtotal", "total", "tax", "vat", "gst", "invoice number", "bill number",
		"vendor", "supplier", "due date", "payment terms", "remit to", "billing",
	}},
	{Name: "medical", DisplayName: "Medical", Description: "Medical bills, prescriptions, insurance claims", Priority: 3, Keywords: []string{
		"medical", "prescription", "pharmacy", "doctor", "hospital", "clinic",
		"health", "medicare", "medicaid", "insurance claim", "patient", "diagnosis",
		"treatment", "medication", "rx", "physician", "nurse", "lab", "test results",
	}},
	{Name: "insurance", DisplayName: "Insurance", Description: "Insurance policies, claims, and documents", Priority: 4, Keywords: []string{
		"insurance", "policy", "premium", "claim", "coverage", "deductible",
		"policyholder", "beneficiary", "underwriter", "liability", "auto insurance",
		"home insurance", "life insurance", "health insurance", "claim number",
	}},
	{Name: "tax", DisplayName: "Tax", Description: "Tax documents, returns, and related paperwork", Priority: 5, Keywords: []string{
		"tax", "irs", "form", "1040", "w2", "w4", "1099", "deduction", "refund",
		"withholding", "filing", "return", "federal", "state", "income tax",
		"property tax", "sales tax", "tax year", "ein", "ssn", "tax id",
	}},
	{Name: "financial", DisplayName: "Financial", Description: "Bank statements, loans, investments", Priority: 6, Keywords: []string{
		"bank", "statement", "account", "balance", "transaction", "deposit",
		"withdrawal", "loan", "mortgage", "credit", "investment", "portfolio",
		"savings", "checking", "routing", "swift", "iban", "interest", "dividend",
	}},
	{Name: "warranty", DisplayName: "Warranty", Description: "Warranty cards and product guarantees", Priority: 7, Keywords: []string{
		"warranty", "guarantee", "warrantee", "coverage", "repair", "replacement",
		"product registration", "serial number", "model number", "manufacturer",
		"defect", "malfunction", "terms and conditions", "expiration", "valid until",
	}},
	{Name: "utility", DisplayName: "Utility", Description: "Utility bills and service providers", Priority: 8, Keywords: []string{
		"utility", "electric", "electricity", "gas", "water", "sewer", "internet",
		"cable", "phone", "wireless", "cellular", "broadband", "service", "usage",
		"meter", "kilowatt", "kwh", "therms", "gallons", "data", "minutes",
	}},
	{Name: "legal", DisplayName: "Legal", Description: "Legal documents, contracts, and agreements", Priority: 9, Keywords: []string{
		"legal", "contract", "agreement", "lease", "rental", "terms", "conditions",
		"attorney", "lawyer", "court", "lawsuit", "settlement", "notary", "witness",
		"signature", "bind", "obligation", "clause", "amendment", "addendum",
	}},
	{Name: "employment", DisplayName: "Employment", Description: "Employment documents, pay stubs, HR paperwork", Priority: 10, Keywords: []string{
		"employment", "payroll", "paystub", "salary", "wage", "employee", "employer",
		"hr", "human resources", "benefits", "vacation", "sick leave", "pension",
		"401k", "offer letter", "termination", "resignation", "performance review",
	}},
	{Name: "automotive", DisplayName: "Automotive", Description: "Vehicle documents, registration, maintenance", Priority: 11, Keywords: []string{
		"vehicle", "car", "auto", "automotive", "registration", "title", "license",
		"maintenance", "repair", "service", "oil change", "inspection", "smog",
		"emissions", "vin", "mileage", "dealer", "garage", "mechanic", "parts",
	}},
	{Name: "real_estate", DisplayName: "Real Estate", Description: "Property documents, deeds, mortgage papers", Priority: 12, Keywords: []string{
		"real estate", "property", "deed", "mortgage", "escrow", "closing", "title",
		"appraisal", "inspection", "realtor", "agent", "broker", "listing", "mls",
		"hoa", "homeowners association", "property tax", "assessment", "survey",
	}},
	{Name: "subscription", DisplayName: "Subscription", Description: "Subscription services and recurring payments", Priority: 13, Keywords: []string{
		"subscription", "recurring", "monthly", "annual", "membership", "service",
		"streaming", "software", "saas", "renewal", "auto-pay", "billing cycle",
		"netflix", "spotify", "amazon prime", "office 365", "adobe", "gym",
	}},
	{Name: "government", DisplayName: "Government", Description: "Government documents and official paperwork", Priority: 14, Keywords: []string{
		"government", "federal", "state", "local", "department", "agency", "bureau",
		"passport", "visa", "license", "permit", "certificate", "dmv", "social security",
		"unemployment", "benefits", "veteran", "military", "court", "jury", "voting",
	}},
	{Name: "business", DisplayName: "Business", Description: "Business documents and corporate paperwork", Priority: 15, Keywords: []string{
		"business", "company", "corporation", "llc", "partnership", "contract",
		"vendor", "supplier", "client", "customer", "proposal", "quote", "estimate",
		"purchase order", "delivery", "shipping", "tracking", "wholesale", "retail",
	}},
	{Name: "travel", DisplayName: "Travel", Description: "Travel documents, tickets, and itineraries", Priority: 16, Keywords: []string{
		"travel", "flight", "airline", "hotel", "reservation", "booking", "ticket",
		"itinerary", "boarding pass", "passport", "visa", "customs", "immigration",
		"rental car", "cruise", "vacation", "trip", "departure", "arrival", "gate",
	}},
	{Name: "education", DisplayName: "Education", Description: "Educational documents, transcripts, and certificates", Priority: 17, Keywords: []string{
		"education", "school", "university", "college", "transcript", "diploma",
		"certificate", "degree", "student", "tuition", "scholarship", "financial aid",
		"loan", "grant", "enrollment", "registration", "class", "course", "grade",
	}},
	{Name: "personal", DisplayName: "Personal", Description: "Personal documents and records", Priority: 18, Keywords: []string{
		"personal", "family", "birth certificate", "marriage", "divorce", "death",
		"adoption", "custody", "child support", "alimony", "inheritance", "will",
		"trust", "estate", "power of attorney", "guardian", "conservator",
	}},
	{Name: Other, DisplayName: "Other", Description: "Miscellaneous documents that don't fit other categories", Priority: 19},
}

var aliases = map[string]string{
	"bill":         "invoice",
	"receipt":      "invoice",
	"health":       "medical",
	"doctor":       "medical",
	"prescription": "medical",
	"bank":         "financial",
	"statement":    "financial",
	"loan":         "financial",
	"investment":   "financial",
	"car":          "automotive",
	"vehicle":      "automotive",
	"auto":         "automotive",
	"house":        "real_estate",
	"home":         "real_estate",
	"property":     "real_estate",
	"work":         "employment",
	"job":          "employment",
	"payroll":      "employment",
	"pay":          "employment",
	"school":       "education",
	"university":   "education",
	"college":      "education",
	"govt":         "government",
	"federal":      "government",
	"state":        "government",
}

var (
	byName       = make(map[string]*Category, len(categories))
	byDisplay    = make(map[string]*Category, len(categories))
	boundaryRE   = make(map[string]*regexp.Regexp)
	nonWordRE    = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

func init() {
	for i := range categories {
		c := &categories[i]
		byName[c.Name] = c
		byDisplay[strings.ToLower(c.DisplayName)] = c
		for _, kw := range c.Keywords {
			if _, ok := boundaryRE[kw]; !ok {
				boundaryRE[kw] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
			}
		}
	}
}

// All 返回全部分类（按优先级顺序）。
func All() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Get 按名称查找分类。
func Get(name string) (Category, bool) {
	c, ok := byName[name]
	if !ok {
		return Category{}, false
	}
	return *c, true
}

// Valid 判断 name 是否为已知分类名。
func Valid(name string) bool {
	_, ok := byName[name]
	return ok
}

// Normalize 将用户输入归一化为分类名，支持分类名、显示名和常见别名（大小写不敏感）。
// 无法识别时返回 false。
func Normalize(input string) (string, bool) {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "" {
		return "", false
	}
	if c, ok := byName[in]; ok {
		return c.Name, true
	}
	if c, ok := byDisplay[in]; ok {
		return c.Name, true
	}
	if name, ok := aliases[in]; ok {
		return name, true
	}
	return "", false
}

// Result 是自动分类的结果。
type Result struct {
	Category        string   `json:"category"`
	Confidence      float64  `json:"confidence"`
	MatchedKeywords []string `json:"matched_keywords"`
}

// AutoCategorize 根据文件名和提取文本为文档打分归类。
// 每个命中关键词记 10 分，完整单词命中再加 5 分，文件名中出现再加 10 分；
// 分类总分乘以 1/Priority，取最高者，置信度为 min(score/50, 1)。没有任何命中时归为 other。
func AutoCategorize(filename, text string) Result {
	content := strings.ToLower(filename + " " + text)
	content = nonWordRE.ReplaceAllString(content, " ")
	content = strings.TrimSpace(whitespaceRE.ReplaceAllString(content, " "))
	lowerName := strings.ToLower(filename)

	best := Result{Category: Other, MatchedKeywords: []string{}}
	bestScore := 0.0
	for i := range categories {
		c := &categories[i]
		if c.Name == Other {
			continue
		}
		score := 0
		var matched []string
		for _, kw := range c.Keywords {
			if !strings.Contains(content, kw) {
				continue
			}
			kwScore := 10
			if boundaryRE[kw].MatchString(content) {
				kwScore += 5
			}
			if strings.Contains(lowerName, kw) {
				kwScore += 10
			}
			score += kwScore
			matched = append(matched, kw)
		}
		weighted := float64(score) / float64(c.Priority)
		if weighted > bestScore {
			bestScore = weighted
			best = Result{Category: c.Name, MatchedKeywords: matched}
		}
	}
	if bestScore > 0 {
		best.Confidence = min(bestScore/50.0, 1.0)
	}
	return best
}
