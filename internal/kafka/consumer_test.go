package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx     context.Context
	mu      sync.Mutex
	marked  []int64
	commits int
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	ch chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

func message(t *testing.T, offset int64, name string) *sarama.ConsumerMessage {
	t.Helper()
	data, err := json.Marshal(domain.AnalyticsEvent{ID: uuid.New(), Name: name, CreatedAt: time.Now()})
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Offset: offset, Value: data}
}

func TestAnalyticsHandler_FlushesFullBatches(t *testing.T) {
	var stored [][]domain.AnalyticsEvent
	sink := func(_ context.Context, events []domain.AnalyticsEvent) error {
		stored = append(stored, append([]domain.AnalyticsEvent(nil), events...))
		return nil
	}
	h := newAnalyticsHandler(sink, 2, time.Hour, logger.NewNop())

	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 5)}
	claim.ch <- message(t, 1, domain.EventPageView)
	claim.ch <- message(t, 2, domain.EventSearch)
	claim.ch <- &sarama.ConsumerMessage{Offset: 3, Value: []byte("not json")}
	claim.ch <- message(t, 4, domain.EventMapOpened)
	close(claim.ch)

	sess := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.ConsumeClaim(sess, claim))

	require.Len(t, stored, 2)
	assert.Len(t, stored[0], 2)
	assert.Len(t, stored[1], 1, "malformed message skipped, remainder flushed on close")
	assert.Equal(t, []int64{2, 4}, sess.marked)
	assert.Equal(t, 2, sess.commits)
}

func TestAnalyticsHandler_DoesNotCommitOnSinkError(t *testing.T) {
	sink := func(context.Context, []domain.AnalyticsEvent) error { return errors.New("db down") }
	h := newAnalyticsHandler(sink, 1, time.Hour, logger.NewNop())

	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 1)}
	claim.ch <- message(t, 7, domain.EventPageView)
	close(claim.ch)

	sess := &fakeSession{ctx: context.Background()}
	err := h.ConsumeClaim(sess, claim)
	assert.ErrorContains(t, err, "db down")
	assert.Empty(t, sess.marked)
	assert.Zero(t, sess.commits)
}
