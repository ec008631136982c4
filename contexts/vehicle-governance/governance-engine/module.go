package governanceengine

import (
	"log/slog"
	"time"

	httpadapter "wheelshare/contexts/vehicle-governance/governance-engine/adapters/http"
	"wheelshare/contexts/vehicle-governance/governance-engine/adapters/memory"
	"wheelshare/contexts/vehicle-governance/governance-engine/application/commands"
	"wheelshare/contexts/vehicle-governance/governance-engine/application/queries"
	"wheelshare/contexts/vehicle-governance/governance-engine/ports"
)

type Module struct {
	Handler    httpadapter.Handler
	Governance *commands.GovernanceUseCase
	Store      *memory.Store
}

type Dependencies struct {
	Proposals             ports.ProposalRepository
	Votes                 ports.VoteRepository
	History               ports.HistoryRepository
	Finalizations         ports.FinalizationStore
	Ownership             ports.OwnershipStore
	Funds                 ports.FundStore
	Outbox                ports.OutboxWriter
	Clock                 ports.Clock
	IDGen                 ports.IDGenerator
	VotingWindow          time.Duration
	CancelOnlyBeforeVotes bool
	Logger                *slog.Logger
}

func NewModule(deps Dependencies) Module {
	governance := &commands.GovernanceUseCase{
		Proposals:             deps.Proposals,
		Votes:                 deps.Votes,
		Finalizations:         deps.Finalizations,
		Ownership:             deps.Ownership,
		Funds:                 deps.Funds,
		Outbox:                deps.Outbox,
		Clock:                 deps.Clock,
		IDGen:                 deps.IDGen,
		VotingWindow:          deps.VotingWindow,
		CancelOnlyBeforeVotes: deps.CancelOnlyBeforeVotes,
		Logger:                deps.Logger,
	}
	proposalQueries := queries.ProposalUseCase{
		Proposals: deps.Proposals,
		Votes:     deps.Votes,
		History:   deps.History,
	}
	return Module{
		Handler: httpadapter.Handler{
			Governance: governance,
			Queries:    proposalQueries,
			Logger:     deps.Logger,
		},
		Governance: governance,
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Proposals:     store,
		Votes:         store,
		History:       store,
		Finalizations: store,
		Ownership:     store,
		Funds:         store,
		Outbox:        store,
		Clock:         store,
		IDGen:         store,
		VotingWindow:  7 * 24 * time.Hour,
		Logger:        logger,
	})
	module.Store = store
	return module
}
