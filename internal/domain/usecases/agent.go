package usecases

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/0xcro3dile/localrag-agent/internal/domain/command"
	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
	"github.com/0xcro3dile/localrag-agent/internal/domain/router"
	"github.com/0xcro3dile/localrag-agent/internal/domain/toolcall"
	"github.com/0xcro3dile/localrag-agent/internal/metrics"
	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

const (
	synthesisPrompt  = "Give a concise final answer based on the information above."
	lowConfidenceTag = "\n\n(Low confidence) Answer may not reflect source documents."
	stepResultLimit  = 200
)

var agentSampling = ports.Sampling{MaxTokens: 512, Temperature: 0}

func agentSystemPrompt() string {
	return "You are a file assistant. Answer questions using ONLY tool results.\n" +
		"NEVER answer from general knowledge. Always call a tool first.\n" +
		"List of tools: " + command.SchemaJSON()
}

// RunOptions carries per-run observers. Both are optional.
type RunOptions struct {
	OnStep  func(entities.AgentStep)
	OnToken func(string)
}

// Agent runs the bounded reasoning loop for one directory: each step the
// model picks a tool, the tool runs and its result is fed back, until the
// model responds or the step budget is spent.
type Agent struct {
	gen         ports.Generator
	tools       ports.ToolExecutor
	rewriter    *QueryRewriter
	interpreter *toolcall.Interpreter
	cfg         entities.SessionConfig
	system      string
}

// NewAgent creates an Agent. rewriter may be nil, in which case queries are
// used as typed.
func NewAgent(gen ports.Generator, tools ports.ToolExecutor, rewriter *QueryRewriter, cfg entities.SessionConfig) *Agent {
	return &Agent{
		gen:         gen,
		tools:       tools,
		rewriter:    rewriter,
		interpreter: toolcall.NewInterpreter(),
		cfg:         cfg.WithDefaults(),
		system:      agentSystemPrompt(),
	}
}

// Run answers query. history holds earlier turns of the conversation, oldest
// first. An answer is always produced unless the model is unavailable or ctx
// is done.
func (a *Agent) Run(ctx context.Context, query string, history []entities.ConversationTurn, opts RunOptions) (*entities.Answer, error) {
	r := &agentRun{
		agent:     a,
		opts:      opts,
		seen:      make(map[string]bool),
		toolsUsed: make(map[command.Name]bool),
	}
	ans, err := r.run(ctx, query, history)
	if err != nil {
		metrics.AgentRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	return ans, nil
}

type agentRun struct {
	agent *Agent
	opts  RunOptions

	rewrite  entities.Rewrite
	messages []entities.ConversationTurn

	steps     []entities.AgentStep
	sources   []string
	seen      map[string]bool
	evidence  string
	toolsUsed map[command.Name]bool

	pending      command.Command
	followupUsed bool
}

func (r *agentRun) run(ctx context.Context, query string, history []entities.ConversationTurn) (*entities.Answer, error) {
	a := r.agent
	cfg := a.cfg

	r.rewrite = entities.Rewrite{ResolvedQuery: query, SearchQuery: query, Intent: entities.IntentFactual}
	if a.rewriter != nil {
		rw, err := a.rewriter.Rewrite(ctx, query, history)
		if err != nil {
			return nil, fmt.Errorf("rewriting query: %w", err)
		}
		r.rewrite = rw
	}

	r.messages = append(r.messages, lastTurns(history, cfg.HistoryTurns)...)
	r.messages = append(r.messages, entities.ConversationTurn{Role: entities.RoleUser, Text: r.rewrite.ResolvedQuery})

	for step := 0; step < cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if r.pending != nil {
			cmd := r.pending
			r.pending = nil
			if err := r.execute(ctx, step, cmd, "", entities.OriginFollowup); err != nil {
				return nil, err
			}
			continue
		}

		raw, err := r.generate(ctx, r.messages, ports.PurposeAgent)
		if err != nil {
			return nil, err
		}

		cmd, ok := a.interpreter.Interpret(raw)
		origin := entities.OriginModel
		if !ok {
			if step > 0 {
				if fu := r.followup(); fu != nil {
					logx.Debug().Int("step", step).Str("tool", string(fu.Name())).Msg("followup instead of direct answer")
					if err := r.execute(ctx, step, fu, raw, entities.OriginFollowup); err != nil {
						return nil, err
					}
					continue
				}
				logx.Debug().Int("step", step).Msg("no tool call, taking reply as the answer")
				return r.finish("direct", strings.TrimSpace(raw), false), nil
			}
			cmd, origin = r.route(query), entities.OriginRouter
			logx.Debug().Str("tool", string(cmd.Name())).Msg("no tool call on first step, routed")
		}

		if c, isRespond := cmd.(command.Respond); isRespond {
			answer := c.Answer
			if answer == "" {
				r.messages = append(r.messages, entities.ConversationTurn{Role: entities.RoleAssistant, Text: raw})
				if answer, err = r.synthesize(ctx); err != nil {
					return nil, err
				}
			}
			return r.finish("respond", answer, false), nil
		}

		if err := r.execute(ctx, step, cmd, raw, origin); err != nil {
			return nil, err
		}
		if step > 0 && r.pending == nil {
			r.pending = r.followup()
		}
	}

	logx.Debug().Int("steps", cfg.MaxSteps).Msg("step budget spent, synthesizing")
	answer, err := r.synthesize(ctx)
	if err != nil {
		return nil, err
	}
	return r.finish("exhausted", answer, true), nil
}

// route picks a command deterministically. Routed searches use the
// rewriter's expanded query.
func (r *agentRun) route(query string) command.Command {
	cmd := router.Route(query, r.rewrite.Intent)
	if s, ok := cmd.(command.Search); ok {
		if expanded, err := command.NewSearch(r.rewrite.SearchQuery, s.TopK); err == nil {
			return expanded
		}
	}
	return cmd
}

func (r *agentRun) generate(ctx context.Context, messages []entities.ConversationTurn, purpose ports.Purpose) (string, error) {
	raw, err := r.agent.gen.Generate(ctx, ports.GenerateRequest{
		System:   r.agent.system,
		Messages: messages,
		Sampling: agentSampling,
		Purpose:  purpose,
		OnToken:  r.opts.OnToken,
	})
	if err != nil {
		return "", fmt.Errorf("generating %s reply: %w", purpose, err)
	}
	return raw, nil
}

func (r *agentRun) synthesize(ctx context.Context) (string, error) {
	messages := append(r.messages[:len(r.messages):len(r.messages)],
		entities.ConversationTurn{Role: entities.RoleUser, Text: synthesisPrompt})
	raw, err := r.generate(ctx, messages, ports.PurposeSynthesis)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// execute runs cmd and appends the model reply (if any) and the tool result
// to the conversation. Tool failures become result text; only model
// unavailability and cancellation are returned.
func (r *agentRun) execute(ctx context.Context, step int, cmd command.Command, raw string, origin entities.StepOrigin) error {
	res, err := r.agent.tools.Execute(ctx, cmd)
	text := res.Text
	if err != nil {
		if errors.Is(err, entities.ErrModelUnavailable) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		text = fmt.Sprintf("Tool %s failed: %v", cmd.Name(), toolCause(err))
		logx.Warn().Err(err).Str("tool", string(cmd.Name())).Msg("tool failed")
	}

	r.toolsUsed[cmd.Name()] = true
	for _, s := range res.Sources {
		if !r.seen[s] {
			r.seen[s] = true
			r.sources = append(r.sources, s)
		}
	}
	if res.Evidence != "" {
		r.evidence = res.Evidence
	}

	if raw != "" {
		r.messages = append(r.messages, entities.ConversationTurn{Role: entities.RoleAssistant, Text: raw})
	}
	r.messages = append(r.messages, entities.ConversationTurn{Role: entities.RoleTool, Text: toolTurn(cmd.Name(), text)})

	s := entities.AgentStep{
		Index:  step,
		Tool:   string(cmd.Name()),
		Params: cmd.Params(),
		Origin: origin,
		Result: truncate(text, stepResultLimit),
	}
	r.steps = append(r.steps, s)
	metrics.AgentStepsTotal.WithLabelValues(s.Tool, string(origin)).Inc()
	logx.Debug().Int("step", step).Str("tool", s.Tool).Str("origin", string(origin)).Str("result", s.Result).Msg("agent step")
	if r.opts.OnStep != nil {
		r.opts.OnStep(s)
	}
	return nil
}

// followup returns a retrieval command for query keywords that no tool or
// assistant turn mentions yet. It fires at most once per run.
func (r *agentRun) followup() command.Command {
	if r.followupUsed {
		return nil
	}
	var keywords []string
	for _, kw := range extractKeywords(r.rewrite.ResolvedQuery, r.agent.cfg.MinKeywordLength) {
		if !followupStopwords[kw] {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return nil
	}

	var sb strings.Builder
	for _, m := range r.messages {
		if m.Role == entities.RoleTool || m.Role == entities.RoleAssistant {
			sb.WriteString(strings.ToLower(m.Text))
			sb.WriteByte(' ')
		}
	}
	collected := sb.String()

	var missing []string
	for _, kw := range keywords {
		if !covered(kw, collected) {
			missing = append(missing, kw)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var cmd command.Command
	switch {
	case !r.toolsUsed[command.NameSearch]:
		s, err := command.NewSearch(strings.Join(missing, " "), r.agent.cfg.TopK)
		if err != nil {
			return nil
		}
		cmd = s
	case !r.toolsUsed[command.NameGrepFiles]:
		cmd = command.GrepFiles{Pattern: missing[0]}
	default:
		return nil
	}
	r.followupUsed = true
	logx.Debug().Strs("missing", missing).Str("tool", string(cmd.Name())).Msg("followup scheduled")
	return cmd
}

// covered reports whether kw, or its stem without trailing s, occurs in text.
func covered(kw, text string) bool {
	if strings.Contains(text, kw) {
		return true
	}
	stem := strings.TrimRight(kw, "s")
	return len(stem) >= 3 && strings.Contains(text, stem)
}

func (r *agentRun) finish(outcome, text string, exhausted bool) *entities.Answer {
	ans := &entities.Answer{
		Text:      text,
		Sources:   r.sources,
		Steps:     r.steps,
		Exhausted: exhausted,
	}
	if r.evidence != "" && text != "" {
		ratio, ok := ConfidenceRatio(text, r.evidence)
		if ok && ratio < r.agent.cfg.ConfidenceThreshold {
			ans.Text += lowConfidenceTag
			ans.LowConfidence = true
			metrics.LowConfidenceTotal.Inc()
		}
	}
	if ans.Sources == nil {
		ans.Sources = []string{}
	}
	metrics.AgentRunsTotal.WithLabelValues(outcome).Inc()
	logx.Debug().Str("outcome", outcome).Int("steps", len(r.steps)).Bool("low_confidence", ans.LowConfidence).Msg("agent done")
	return ans
}

// ConfidenceRatio is the share of distinct answer tokens that also occur in
// evidence. ok is false when the answer has no tokens.
func ConfidenceRatio(answer, evidence string) (ratio float64, ok bool) {
	at := tokenSet(answer)
	if len(at) == 0 {
		return 0, false
	}
	et := tokenSet(evidence)
	shared := 0
	for t := range at {
		if _, found := et[t]; found {
			shared++
		}
	}
	return float64(shared) / float64(len(at)), true
}

func toolTurn(name command.Name, result string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(struct {
		Tool   string `json:"tool"`
		Result string `json:"result"`
	}{string(name), result})
	return strings.TrimSuffix(buf.String(), "\n")
}

func toolCause(err error) error {
	var te *entities.ToolExecutionError
	if errors.As(err, &te) && te.Err != nil {
		return te.Err
	}
	return err
}
