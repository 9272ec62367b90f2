package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"fliptowin/internal/game"
)

const TopicBetSettled = "coinflip.bet.settled"

// BetSettled is the wire form of a settlement. Amounts are decimal strings.
type BetSettled struct {
	SettlementID   string `json:"settlement_id"`
	UserID         string `json:"user_id"`
	RoundID        int64  `json:"round_id"`
	Choice         string `json:"choice"`
	Outcome        string `json:"outcome"`
	Stake          string `json:"stake"`
	Won            bool   `json:"won"`
	WalletBalance  string `json:"wallet_balance"`
	CurrentBalance string `json:"current_balance"`
	TsUnixMs       int64  `json:"ts_unix_ms"`
}

func NewBetSettled(s game.Settlement) BetSettled {
	return BetSettled{
		SettlementID:   s.ID,
		UserID:         s.UserID,
		RoundID:        s.RoundID,
		Choice:         string(s.Choice),
		Outcome:        string(s.Outcome),
		Stake:          s.Stake.String(),
		Won:            s.Won,
		WalletBalance:  s.After.Wallet.String(),
		CurrentBalance: s.After.Current.String(),
		TsUnixMs:       s.SettledAt.UnixMilli(),
	}
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	log    *zap.Logger
}

// NewKafkaWriter hashes on the message key so one user's settlements stay
// ordered on one partition.
func NewKafkaWriter(brokers, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
	}
}

func NewKafkaPublisher(w messageWriter, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, log: log.With(zap.String("component", "kafka_publisher"))}
}

func (p *KafkaPublisher) PublishSettlement(ctx context.Context, s game.Settlement) error {
	b, err := json.Marshal(NewBetSettled(s))
	if err != nil {
		return fmt.Errorf("marshal bet settled: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(s.UserID),
		Value: b,
		Time:  s.SettledAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write bet settled: %w", err)
	}
	p.log.Debug("settlement published", zap.String("settlement_id", s.ID), zap.Int64("round_id", s.RoundID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishSettlement(context.Context, game.Settlement) error { return nil }
func (NopPublisher) Close() error                                             { return nil }
