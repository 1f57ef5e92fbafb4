package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultRewardSubject is the subject rewards are consumed from.
const DefaultRewardSubject = "modelrouter.rewards"

const (
	drainTimeout = 30 * time.Second
	drainPoll    = 5 * time.Millisecond
)

// RewardMessage is the payload of a reward.
type RewardMessage struct {
	DecisionID string   `json:"decision_id"`
	Reward     *float64 `json:"reward"`
}

// Ack answers reward messages that carry a reply subject.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Rewarder applies a reward to a pending decision.
type Rewarder interface {
	Reward(ctx context.Context, decisionID string, reward float64) error
}

// Subscriber feeds rewards from NATS into a Rewarder.
type Subscriber struct {
	nc       *nats.Conn
	subject  string
	rewarder Rewarder
	logger   *zap.Logger

	mu  sync.Mutex
	sub *nats.Subscription
	ctx context.Context
}

// NewSubscriber creates a subscriber. An empty subject uses DefaultRewardSubject.
func NewSubscriber(nc *nats.Conn, subject string, rewarder Rewarder, logger *zap.Logger) (*Subscriber, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if rewarder == nil {
		return nil, errors.New("rewarder is required")
	}
	if subject == "" {
		subject = DefaultRewardSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{nc: nc, subject: subject, rewarder: rewarder, logger: logger}, nil
}

// Start subscribes. Rewards are applied with ctx until Stop is called.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		return fmt.Errorf("subscriber already started on %s", s.subject)
	}
	s.ctx = ctx

	sub, err := s.nc.Subscribe(s.subject, s.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	// Make sure the server has registered interest before returning.
	if err := s.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flush subscription %s: %w", s.subject, err)
	}
	s.sub = sub

	s.logger.Info("reward subscriber started", zap.String("subject", s.subject))
	return nil
}

// Stop drains the subscription and returns once every queued reward has
// been applied, so a snapshot taken afterwards includes them.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("drain %s: %w", s.subject, err)
	}
	return waitDrained(sub, drainTimeout)
}

// waitDrained polls until nats has removed the draining subscription,
// which happens after its last message handler returns.
func waitDrained(sub *nats.Subscription, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(drainPoll)
	defer tick.Stop()

	for sub.IsValid() {
		select {
		case <-deadline.C:
			return fmt.Errorf("drain %s: timed out after %s", sub.Subject, timeout)
		case <-tick.C:
		}
	}
	return nil
}

func (s *Subscriber) handle(msg *nats.Msg) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	err := s.apply(ctx, msg.Data)
	if err != nil {
		s.logger.Warn("reward message dropped",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}

	if msg.Reply == "" {
		return
	}
	ack := Ack{OK: err == nil}
	if err != nil {
		ack.Error = err.Error()
	}
	data, _ := json.Marshal(ack)
	if respErr := msg.Respond(data); respErr != nil {
		s.logger.Warn("failed to acknowledge reward", zap.Error(respErr))
	}
}

func (s *Subscriber) apply(ctx context.Context, data []byte) error {
	var m RewardMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode reward: %w", err)
	}
	if m.DecisionID == "" {
		return errors.New("decision_id is required")
	}
	if m.Reward == nil {
		return errors.New("reward is required")
	}
	return s.rewarder.Reward(ctx, m.DecisionID, *m.Reward)
}
