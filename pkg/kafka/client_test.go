package kafka

import (
	"context"
	"doc-organizer-go/internal/config"
	"doc-organizer-go/pkg/tasks"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	err   error
	tasks []tasks.DocumentProcessingTask
}

func (p *fakeProcessor) Process(_ context.Context, task tasks.DocumentProcessingTask) error {
	p.tasks = append(p.tasks, task)
	return p.err
}

type fakeCounter struct {
	counts map[uint]int64
	err    error
}

func (c *fakeCounter) Incr(_ context.Context, id uint) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.counts == nil {
		c.counts = make(map[uint]int64)
	}
	c.counts[id]++
	return c.counts[id], nil
}

func (c *fakeCounter) Reset(_ context.Context, id uint) error {
	delete(c.counts, id)
	return nil
}

func encode(t *testing.T, task tasks.DocumentProcessingTask) []byte {
	t.Helper()
	b, err := json.Marshal(task)
	require.NoError(t, err)
	return b
}

func TestHandle_SuccessCommits(t *testing.T) {
	proc := &fakeProcessor{}
	counter := &fakeCounter{counts: map[uint]int64{3: 2}}
	c := NewConsumer(config.KafkaConfig{}, proc, counter)

	assert.True(t, c.Handle(context.Background(), encode(t, tasks.DocumentProcessingTask{DocumentID: 3, Filename: "a.pdf"})))
	require.Len(t, proc.tasks, 1)
	assert.Equal(t, "a.pdf", proc.tasks[0].Filename)
	assert.NotContains(t, counter.counts, uint(3))
}

func TestHandle_MalformedMessageCommits(t *testing.T) {
	proc := &fakeProcessor{}
	c := NewConsumer(config.KafkaConfig{}, proc, &fakeCounter{})

	assert.True(t, c.Handle(context.Background(), []byte("{not json")))
	assert.Empty(t, proc.tasks)
}

func TestHandle_RetriesUntilMaxAttempts(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("tika down")}
	counter := &fakeCounter{}
	c := NewConsumer(config.KafkaConfig{MaxAttempts: 3}, proc, counter)
	msg := encode(t, tasks.DocumentProcessingTask{DocumentID: 9})

	assert.False(t, c.Handle(context.Background(), msg))
	assert.False(t, c.Handle(context.Background(), msg))
	assert.True(t, c.Handle(context.Background(), msg), "third failure gives up")
	assert.Len(t, proc.tasks, 3)
}

func TestHandle_CounterFailureDoesNotCommit(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("boom")}
	c := NewConsumer(config.KafkaConfig{}, proc, &fakeCounter{err: errors.New("redis down")})

	assert.False(t, c.Handle(context.Background(), encode(t, tasks.DocumentProcessingTask{DocumentID: 1})))
}

func TestProducer_NotInitialized(t *testing.T) {
	var p *Producer
	assert.ErrorIs(t, p.Produce(context.Background(), tasks.DocumentProcessingTask{}), ErrProducerNotInitialized)
	assert.NoError(t, p.Close())
}

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokers(config.KafkaConfig{Brokers: " a:9092, ,b:9092 "}))
}
