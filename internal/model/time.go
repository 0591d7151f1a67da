package model

import (
	"fmt"
	"time"
)

// LocalTime 将时间格式化为 "YYYY-MM-DD HH:MM:SS"。
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).Format(timeFormat))
	return []byte(formatted), nil
}

// String 返回格式化后的时间字符串。
func (t LocalTime) String() string {
	return time.Time(t).Format(timeFormat)
}
