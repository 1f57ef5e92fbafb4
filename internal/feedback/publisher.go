package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/modelrouter/internal/routing"
	"github.com/fyrsmithlabs/modelrouter/internal/sanitize"
)

// DefaultDecisionSubject is the subject prefix decisions are published under.
const DefaultDecisionSubject = "modelrouter.decisions"

// Publisher publishes decisions to NATS.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewPublisher creates a publisher. An empty prefix uses DefaultDecisionSubject.
func NewPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) (*Publisher, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if prefix == "" {
		prefix = DefaultDecisionSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger}, nil
}

// Subject returns the subject a decision by router for arm is published on:
// <prefix>.<router>.<arm token>. Subscribe to <prefix>.<router>.> for every
// arm of one router.
func (p *Publisher) Subject(router, arm string) string {
	return sanitize.Subject(p.prefix, router, arm)
}

// PublishDecision publishes d as JSON on Subject(d.Router, d.Arm).
func (p *Publisher) PublishDecision(_ context.Context, d routing.Decision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	if err := p.nc.Publish(p.Subject(d.Router, d.Arm), data); err != nil {
		return fmt.Errorf("publish decision: %w", err)
	}
	return nil
}

var _ routing.DecisionPublisher = (*Publisher)(nil)
