package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/metrics"
	"go.uber.org/zap"
)

// Stage names the pipeline phase currently running.
type Stage string

const (
	StageClassifying Stage = "classifying"
	StageExtracting  Stage = "extracting"
	StagePlanning    Stage = "planning"
	StageDispatching Stage = "dispatching"
)

// Observer is notified as the pipeline enters each stage.
type Observer func(Stage)

// Session exposes the wallet connection. Both values may change between
// calls, so the pipeline reads them again at every stage.
type Session interface {
	ChainID() int64
	Address() string
}

type fixedSession struct {
	chainID int64
	address string
}

func (s fixedSession) ChainID() int64  { return s.chainID }
func (s fixedSession) Address() string { return s.address }

// StaticSession wraps a chain id and address that never change.
func StaticSession(chainID int64, address string) Session {
	return fixedSession{chainID: chainID, address: address}
}

const (
	sourceClassifier = "classifier"
	sourceExtractor  = "extractor"
)

// Pipeline turns one utterance into an execution plan: classify, extract,
// plan, then dispatch.
type Pipeline struct {
	extractor  *Extractor
	planner    Planner
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewPipeline(extractor *Extractor, planner Planner, dispatcher *Dispatcher, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{extractor: extractor, planner: planner, dispatcher: dispatcher, logger: logger}
}

// Process runs the pipeline for a request-scoped intent.
func (p *Pipeline) Process(ctx context.Context, in Intent) (Plan, error) {
	return p.Run(ctx, in.RawText, StaticSession(in.ChainID, in.UserAddress), nil)
}

// Run runs the pipeline against a live wallet session.
func (p *Pipeline) Run(ctx context.Context, utterance string, session Session, observe Observer) (Plan, error) {
	if observe == nil {
		observe = func(Stage) {}
	}
	start := time.Now()
	plan, err := p.run(ctx, utterance, session, observe)
	observePlan(start, plan, err)
	return plan, err
}

// ProvideRecipient resumes a transfer plan that stopped for a recipient. The
// first transfer still missing one gets recipient, then the operations are
// dispatched as if they had been extracted from utterance.
func (p *Pipeline) ProvideRecipient(ctx context.Context, waiting Plan, utterance, recipient string, session Session, observe Observer) (Plan, error) {
	if observe == nil {
		observe = func(Stage) {}
	}
	if len(waiting.pending) == 0 {
		return Plan{}, clierr.New(clierr.CodeUsage, "no transfer is waiting for a recipient")
	}
	recipient = strings.TrimRight(strings.TrimSpace(recipient), ".,!?")
	if MissingRecipient(recipient) {
		return Plan{}, clierr.New(clierr.CodeUsage, "recipient is required")
	}
	ops := append([]ParsedOperation(nil), waiting.pending...)
	if i := missingRecipientIndex(ops); i >= 0 {
		ops[i].Recipient = recipient
	}
	start := time.Now()
	plan := p.dispatch(ctx, utterance, ops, waiting.Source, session, observe)
	observePlan(start, plan, nil)
	return plan, nil
}

func observePlan(start time.Time, plan Plan, err error) {
	kind := string(plan.Kind)
	if err != nil {
		kind = clierr.TypeOf(err)
	}
	metrics.IntentsProcessed.WithLabelValues(kind).Inc()
	if plan.Source != "" {
		metrics.PipelineDuration.WithLabelValues(plan.Source).Observe(time.Since(start).Seconds())
	}
}

func (p *Pipeline) run(ctx context.Context, utterance string, session Session, observe Observer) (Plan, error) {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return Plan{}, clierr.New(clierr.CodeUsage, "intent text is required")
	}

	observe(StageClassifying)
	switch Classify(text) {
	case Greeting:
		return Plan{Kind: KindGreeting, Steps: []Step{}, Message: WelcomeMessage, Suggestions: WelcomeSuggestions, Source: sourceClassifier}, nil
	case OffTopic:
		return Plan{Kind: KindOffTopic, Steps: []Step{}, Message: RefusalMessage, Suggestions: WelcomeSuggestions, Source: sourceClassifier}, nil
	}

	observe(StageExtracting)
	var (
		ops    []ParsedOperation
		source string
	)
	if p.extractor != nil {
		if ext, ok := p.extractor.Extract(ctx, text, session.ChainID(), session.Address()); ok {
			p.logger.Debug("extracted operation", zap.String("rule", ext.Rule), zap.String("operation", string(ext.Operation.Operation)))
			if ext.NeedsToken {
				return Plan{
					Kind:    KindNeedsInput,
					Steps:   []Step{},
					Message: "Which token balance would you like to check?",
					Options: ext.Options,
					Source:  sourceExtractor,
				}, nil
			}
			ops = []ParsedOperation{ext.Operation}
			source = sourceExtractor
		}
	}

	if ops == nil {
		observe(StagePlanning)
		if p.planner == nil {
			return Plan{}, clierr.New(clierr.CodePlanGeneration, "no plan provider configured")
		}
		proposal, err := p.planner.GeneratePlan(ctx, text, session.ChainID())
		if err != nil {
			return Plan{}, err
		}
		if len(proposal.Operations) == 0 {
			if len(proposal.Steps) == 0 {
				return Plan{}, clierr.New(clierr.CodePlanGeneration, "plan provider returned no steps")
			}
			steps := make([]Step, len(proposal.Steps))
			for i, step := range proposal.Steps {
				step.Status = StepPending
				step.TransactionHash = ""
				steps[i] = step
			}
			return Plan{
				Kind:    KindPlan,
				Steps:   steps,
				Message: "Here is a suggested plan. These steps are not executed automatically.",
				Source:  proposal.Source,
			}, nil
		}
		ops = proposal.Operations
		source = proposal.Source
	}

	return p.dispatch(ctx, text, ops, source, session, observe), nil
}

// dispatch runs ops unless a transfer among them has no recipient, in which
// case the plan asks for one and keeps ops for ProvideRecipient.
func (p *Pipeline) dispatch(ctx context.Context, text string, ops []ParsedOperation, source string, session Session, observe Observer) Plan {
	if i := missingRecipientIndex(ops); i >= 0 {
		op := ops[i]
		p.logger.Debug("transfer needs a recipient", zap.String("token", op.Token), zap.String("amount", op.Amount))
		return Plan{
			Kind:    KindNeedsInput,
			Steps:   []Step{},
			Message: fmt.Sprintf("Who should receive %s %s? Reply with a 0x address or an ENS name such as vitalik.eth.", op.Amount, op.Token),
			Source:  source,
			pending: ops,
		}
	}
	observe(StageDispatching)
	in := Intent{RawText: text, ChainID: session.ChainID(), UserAddress: session.Address()}
	steps := p.dispatcher.ExecuteAll(ctx, in, ops)
	return Plan{Kind: KindPlan, Steps: steps, Message: summarize(steps), Source: source}
}

func missingRecipientIndex(ops []ParsedOperation) int {
	for i, op := range ops {
		if op.Operation == OpTransfer && op.SkipReason == "" && MissingRecipient(op.Recipient) {
			return i
		}
	}
	return -1
}

func summarize(steps []Step) string {
	var complete, failed, signature int
	for _, step := range steps {
		switch {
		case step.Status == StepComplete:
			complete++
		case step.Status == StepFailed:
			failed++
		case step.Transfer != nil:
			signature++
		}
	}
	switch {
	case signature > 0:
		return "Approve the transfer in your wallet to continue."
	case failed == 0:
		return "Done."
	case len(steps) == 1:
		return steps[0].Description
	case complete == 0:
		return fmt.Sprintf("None of the %d steps succeeded. Check the step details and try again.", failed)
	default:
		return fmt.Sprintf("%d of %d steps succeeded. Check the failed steps and retry them.", complete, len(steps))
	}
}
