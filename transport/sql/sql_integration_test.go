//go:build integration

package sql_test

import (
	"context"
	"testing"
	"time"

	"github.com/GabrielCarpr/mediator/bus"
	"github.com/GabrielCarpr/mediator/log"
	"github.com/GabrielCarpr/mediator/transport"
	"github.com/GabrielCarpr/mediator/transport/sql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
)

var TestConfig = sql.ConfigFromEnv(sql.Config{
	DBName: "mediator",
	DBHost: "db",
	DBUser: "mediator",
	DBPass: "mediator",
})

type ParcelSent struct {
	bus.EventType

	Parcel string `json:"parcel"`
}

type delivery struct {
	parcel string
	id     uuid.UUID
}

type QueueIntegrationSuite struct {
	suite.Suite

	db    *sqlx.DB
	queue *sql.Queue
}

func (s *QueueIntegrationSuite) SetupSuite() {
	db, err := sql.Open(TestConfig)
	s.Require().NoError(err)
	s.db = db
}

func (s *QueueIntegrationSuite) TearDownSuite() {
	s.db.Close()
}

func (s *QueueIntegrationSuite) SetupTest() {
	s.Require().NoError(sql.Reset(context.Background(), s.db, "parcels", sql.PoisonTopic))
	q, err := sql.NewQueue(s.db, "parcels", log.Discard())
	s.Require().NoError(err)
	s.queue = q
}

func (s *QueueIntegrationSuite) TearDownTest() {
	s.queue.Close()
}

func (s *QueueIntegrationSuite) TestPublishesAndConsumes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	got := make(chan delivery, 1)

	sender, err := bus.New(nil,
		bus.WithLogger(log.Discard()),
		bus.Use(transport.ForwardEvent[ParcelSent](s.queue.Forwarder())),
	)
	s.Require().NoError(err)
	defer sender.Close()

	receiver, err := bus.New(nil,
		bus.WithLogger(log.Discard()),
		bus.Use(bus.OnEvent[ParcelSent](bus.EventHandlerFunc[ParcelSent](func(ctx context.Context, e ParcelSent) error {
			got <- delivery{parcel: e.Parcel, id: log.GetID(ctx)}
			return nil
		}))),
	)
	s.Require().NoError(err)
	defer receiver.Close()

	pubCtx := log.WithID(context.Background())
	s.Require().NoError(bus.Publish(pubCtx, sender, ParcelSent{Parcel: "p-1"}))

	pending, err := s.queue.Pending(ctx, "parcels")
	s.Require().NoError(err)
	s.Equal(1, pending)

	consumer, err := s.queue.Consumer(receiver)
	s.Require().NoError(err)
	go consumer.Run(ctx)

	select {
	case d := <-got:
		s.Equal("p-1", d.parcel)
		s.Equal(log.GetID(pubCtx), d.id)
	case <-ctx.Done():
		s.Fail("timed out")
	}
}

func TestQueueIntegration(t *testing.T) {
	suite.Run(t, new(QueueIntegrationSuite))
}
