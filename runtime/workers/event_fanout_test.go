package workers

import (
	"context"
	"log/slog"
	"roomsync/contract"
	"roomsync/domain"
	"roomsync/domain/event"
	"roomsync/mocks"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanoutWorker_Fanout(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockSink := mocks.NewMockEventSink(ctrl)
	roomSinks := []contract.EventSink{mockSink, mockSink}

	fanoutWorker := NewEventFanout(log, mockRegistry, 1, 10*time.Second)

	evt := event.MessagesUpdated{Room: "r1"}

	// Given two sinks follow the room
	mockRegistry.EXPECT().SinksFor(domain.RoomID("r1")).Return(roomSinks).Times(1)
	// Then both consume the event
	mockSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(2)

	// When an event is handled by the worker
	fanoutWorker.Fanout(context.Background(), evt)
}

func TestEventFanoutWorker_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	slowSink := mocks.NewMockEventSink(ctrl)
	nextSink := mocks.NewMockEventSink(ctrl)

	fanoutWorker := NewEventFanout(log, mockRegistry, 1, 20*time.Millisecond)

	mockRegistry.EXPECT().SinksFor(gomock.Any()).Return([]contract.EventSink{slowSink, nextSink}).Times(1)
	// Given a sink waiting for its deadline
	slowSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ event.Event) error {
			<-ctx.Done()
			return ctx.Err()
		}).
		Times(1)
	// Then the next sink is still served
	nextSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	start := time.Now()
	fanoutWorker.Fanout(context.Background(), event.RoomsUpdated{})
	req.Less(time.Since(start), time.Second)
}

func TestEventFanoutWorker_Run_Delivers_In_Order(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockSink := mocks.NewMockEventSink(ctrl)
	mockRegistry.EXPECT().SinksFor(gomock.Any()).Return([]contract.EventSink{mockSink}).AnyTimes()

	received := make(chan event.Event, 3)
	mockSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e event.Event) error {
			received <- e
			return nil
		}).
		Times(3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fanoutWorker := NewEventFanout(log, mockRegistry, 8, time.Second)
	go func() { _ = fanoutWorker.Run(ctx) }()

	for _, room := range []domain.RoomID{"r1", "r2", "r3"} {
		fanoutWorker.Publish(ctx, event.RoomClosed{Room: room})
	}
	for _, room := range []domain.RoomID{"r1", "r2", "r3"} {
		select {
		case e := <-received:
			req.Equal(room, e.RoomID())
		case <-time.After(time.Second):
			req.Fail("event not delivered")
		}
	}
}

func TestEventFanoutWorker_Publish_Gives_Up_When_Context_Done(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	fanoutWorker := NewEventFanout(slog.Default(), mocks.NewMockIRegistry(ctrl), 0, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Nobody runs the worker; an unbuffered publish must not hang
	fanoutWorker.Publish(ctx, event.RoomsUpdated{})
}
