package pollservice

import (
	"log/slog"
	"time"

	httpadapter "livepoll/contexts/live-polling/poll-service/adapters/http"
	"livepoll/contexts/live-polling/poll-service/adapters/memory"
	"livepoll/contexts/live-polling/poll-service/application/commands"
	"livepoll/contexts/live-polling/poll-service/application/queries"
	"livepoll/contexts/live-polling/poll-service/application/workers"
	"livepoll/contexts/live-polling/poll-service/domain/entities"
	"livepoll/contexts/live-polling/poll-service/ports"

	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"
)

type Module struct {
	Handler    httpadapter.Handler
	Reconciler workers.ScoreReconciler
	Store      *memory.Store
}

type Dependencies struct {
	Polls            ports.PollRepository
	Votes            ports.VoteLedger
	Scores           ports.ScoreStore
	Bus              ports.NotificationBus
	Clock            ports.Clock
	IDGen            ports.IDGenerator
	ConflictAttempts int
	RetryDelay       time.Duration
	Logger           *slog.Logger
}

func NewModule(deps Dependencies) Module {
	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}
	pollUseCase := commands.PollUseCase{
		Polls:  deps.Polls,
		Clock:  deps.Clock,
		IDGen:  deps.IDGen,
		Logger: deps.Logger,
	}
	voteUseCase := commands.VoteUseCase{
		Polls:            deps.Polls,
		Votes:            deps.Votes,
		Scores:           deps.Scores,
		Bus:              deps.Bus,
		Clock:            deps.Clock,
		IDGen:            deps.IDGen,
		Locks:            kmutex.New(),
		ConflictAttempts: deps.ConflictAttempts,
		RetryDelay:       deps.RetryDelay,
		Logger:           deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Polls: pollUseCase,
			Votes: voteUseCase,
			PollReads: queries.PollQuery{
				Polls:  deps.Polls,
				Scores: deps.Scores,
				Logger: deps.Logger,
			},
			Results: queries.ResultsUseCase{
				Bus:    deps.Bus,
				Logger: deps.Logger,
			},
			Logger: deps.Logger,
		},
		Reconciler: workers.ScoreReconciler{
			Polls:  deps.Polls,
			Votes:  deps.Votes,
			Scores: deps.Scores,
			Bus:    deps.Bus,
			Clock:  deps.Clock,
			Logger: deps.Logger,
		},
	}
}

// NewInMemoryModule wires every port to one memory store. The bus stays
// external because its lifecycle belongs to the process, not the module.
func NewInMemoryModule(seed []entities.Poll, bus ports.NotificationBus, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Polls:  store,
		Votes:  store,
		Scores: store,
		Bus:    bus,
		Clock:  clock.WallClock,
		IDGen:  store,
		Logger: logger,
	})
	module.Store = store
	return module
}
