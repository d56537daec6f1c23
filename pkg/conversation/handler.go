package conversation

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/pario-ai/leadchat/pkg/cache"
	"github.com/pario-ai/leadchat/pkg/leads"
	"github.com/pario-ai/leadchat/pkg/logging"
	"github.com/pario-ai/leadchat/pkg/models"
)

// ChatService is what the handler needs from the chat client.
type ChatService interface {
	StreamMessage(ctx context.Context, messages []models.ChatMessage, sessionID, model string, emit func(string) error) (*models.ChatResponse, error)
	ListModels(ctx context.Context) (map[string]string, error)
	Store() *cache.Store
	DefaultModel() string
}

// Handler processes user input for one session.
type Handler struct {
	svc       ChatService
	session   *Session
	exportDir string
	now       func() time.Time
	log       zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithExportDir sets where /export-* commands write files by default.
func WithExportDir(dir string) Option {
	return func(h *Handler) { h.exportDir = dir }
}

// WithClock replaces time.Now for export timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// NewHandler creates a handler with a fresh session on the default model.
func NewHandler(svc ChatService, opts ...Option) *Handler {
	h := &Handler{
		svc:       svc,
		session:   NewSession(svc.DefaultModel()),
		exportDir: ".",
		now:       time.Now,
		log:       logging.NewLogger("conversation"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Session exposes the session state.
func (h *Handler) Session() *Session { return h.session }

// Start loads the model list and prints the welcome banner. A model list
// failure is shown as a warning and the default model is used.
func (h *Handler) Start(ctx context.Context, out io.Writer) error {
	available, err := h.svc.ListModels(ctx)
	if available == nil {
		available = make(map[string]string)
	}
	h.session.Models = available
	if err != nil {
		fmt.Fprintf(out, "⚠️ **Warning:** %v\n\nUsing default model: %s\n\n", err, h.svc.DefaultModel())
	}
	if _, ok := available[h.session.Model]; !ok {
		available[h.session.Model] = h.session.Model
	}

	var b strings.Builder
	b.WriteString("🚀 **Conversational Lead Generation Assistant**\n\n")
	fmt.Fprintf(&b, "**Session ID:** `%s`\n", h.session.ID)
	fmt.Fprintf(&b, "**Current Model:** `%s`\n\n", h.session.Model)
	b.WriteString("Tell me about the leads you're looking for. Type `/help` for commands.\n\n")
	_, werr := io.WriteString(out, b.String())
	return werr
}

// Handle dispatches one line of input: a slash command or a chat turn.
func (h *Handler) Handle(ctx context.Context, input string, out io.Writer) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "/help":
		return h.help(out)
	case "/models", "/change-model":
		return h.models(arg, out)
	case "/model-info":
		return h.modelInfo(out)
	case "/cache-info":
		return h.cacheInfo(ctx, out)
	case "/clear-cache":
		return h.clearCache(ctx, out)
	case "/cleanup-cache":
		return h.cleanupCache(ctx, out)
	case "/export-csv":
		return h.export(leads.CSV, arg, out)
	case "/export-json":
		return h.export(leads.JSON, arg, out)
	}
	return h.chat(ctx, input, out)
}

func (h *Handler) chat(ctx context.Context, input string, out io.Writer) error {
	s := h.session
	resp, err := h.svc.StreamMessage(ctx, s.Turn(input), s.ID, s.Model, func(chunk string) error {
		_, err := io.WriteString(out, chunk)
		return err
	})
	fmt.Fprintln(out)
	if err != nil {
		h.log.Warn().Err(err).Str("session", s.ID).Msg("chat turn failed")
		return err
	}

	s.Record(input, resp.Message)
	h.log.Debug().Str("session", s.ID).Bool("cached", resp.Cached).Int("history", len(s.History)).Msg("chat turn")

	if sr := resp.SearchResults; sr != nil && sr.SearchPerformed && len(sr.Results) > 0 {
		s.Results = sr.Results
		s.ResultsTotal = sr.Count
	}

	if info := AdditionalInfo(resp); len(info) > 0 {
		fmt.Fprint(out, "\n---\n\n"+strings.Join(info, "\n\n")+"\n")
	}
	if sr := resp.SearchResults; sr != nil && sr.SearchPerformed && len(sr.Results) > 0 {
		fmt.Fprintln(out)
		if err := leads.RenderTable(out, sr.Results, sr.Count); err != nil {
			return err
		}
		fmt.Fprint(out, "\nExport with `/export-csv` or `/export-json`.\n")
	}
	return nil
}

// AdditionalInfo summarizes the structured fields of a reply, one markdown
// line each, in a fixed order.
func AdditionalInfo(resp *models.ChatResponse) []string {
	var info []string

	if resp.ReadyForSearch {
		info = append(info, "✅ **Ready for search** - I have enough information to find leads")
	}
	if len(resp.MissingInfo) > 0 {
		info = append(info, "📝 **Missing info:** "+strings.Join(resp.MissingInfo, ", "))
	}
	if sr := resp.SearchResults; sr != nil && sr.SearchPerformed {
		info = append(info, fmt.Sprintf("🔍 **Search results:** Found %d results", sr.Count))
	}
	if resp.SessionSummary != "" {
		info = append(info, "📋 **Session summary:** "+resp.SessionSummary)
	}
	if dc := resp.DomainCheck; dc != nil {
		info = append(info, "🌐 **Domain check:** "+orUnknown(dc.Text, dc.Status))
	}
	if ia := resp.IntentAnalysis; ia != nil {
		switch {
		case ia.Text != "":
			info = append(info, "🎯 **Intent analysis:** "+ia.Text)
		case ia.Confidence != "":
			info = append(info, fmt.Sprintf("🎯 **Intent analysis:** %s (confidence: %s)", orUnknown(ia.Intent), ia.Confidence))
		default:
			info = append(info, "🎯 **Intent analysis:** "+orUnknown(ia.Intent))
		}
	}
	if ec := resp.ExtractedCriteria; ec != nil {
		if ec.Text != "" {
			info = append(info, "📝 **Extracted criteria:** "+ec.Text)
		} else {
			info = append(info, fmt.Sprintf("📝 **Extracted criteria:** %d criteria identified", countSet(ec.Fields)))
		}
	}
	if tm := resp.ToolMetadata; tm != nil && tm.Text != models.ToolMetadataNoSearch {
		if tm.Text != "" {
			info = append(info, "🔧 **Tool metadata:** "+tm.Text)
		} else {
			info = append(info, "🔧 **Search filters:** "+filterSummary(tm.Filters)+" filters applied")
			info = append(info, "🔧 **Service used:** "+orNA(tm.Service))
		}
	}
	return info
}

func orUnknown(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return "unknown"
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// filterSummary counts set filters when they come as an object and shows
// any other value as sent.
func filterSummary(filters any) string {
	switch f := filters.(type) {
	case nil:
		return "N/A"
	case map[string]any:
		return strconv.Itoa(countSet(f))
	default:
		return leads.Stringify(f)
	}
}

// countSet counts entries whose value is not empty, zero or false.
func countSet(m map[string]any) int {
	n := 0
	for _, v := range m {
		if v != nil && !reflect.ValueOf(v).IsZero() && !isEmptyCollection(v) {
			n++
		}
	}
	return n
}

func isEmptyCollection(v any) bool {
	switch t := v.(type) {
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func (h *Handler) help(out io.Writer) error {
	_, err := io.WriteString(out, "**Commands:**\n"+
		"• `/models` - List available models\n"+
		"• `/change-model <id>` - Switch model\n"+
		"• `/model-info` - Show the current model\n"+
		"• `/cache-info` - Show cache statistics\n"+
		"• `/clear-cache` - Clear all cached responses\n"+
		"• `/cleanup-cache` - Remove only expired entries\n"+
		"• `/export-csv [dir]` - Export the last search results as CSV\n"+
		"• `/export-json [dir]` - Export the last search results as JSON\n")
	return err
}

func (h *Handler) models(arg string, out io.Writer) error {
	s := h.session
	if arg != "" {
		if !s.SelectModel(arg) {
			_, err := fmt.Fprintf(out, "❌ **Unknown model:** `%s`. Use `/models` to list available models.\n", arg)
			return err
		}
		h.log.Info().Str("session", s.ID).Str("model", arg).Msg("model changed")
		_, err := fmt.Fprintf(out, "✅ **Model changed to:** %s (`%s`)\n", s.ModelName(arg), arg)
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🤖 **Available Models**\n\nCurrent: **%s**\n\n", s.ModelName(s.Model))
	for _, id := range s.ModelIDs() {
		fmt.Fprintf(&b, "• `%s` - %s", id, s.ModelName(id))
		if id == s.Model {
			b.WriteString(" (Current)")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nSwitch with `/change-model <id>`.\n")
	_, err := io.WriteString(out, b.String())
	return err
}

func (h *Handler) modelInfo(out io.Writer) error {
	s := h.session
	_, err := fmt.Fprintf(out, "🤖 **Current Model Information**\n\n"+
		"**Model ID:** `%s`\n"+
		"**Model Name:** %s\n", s.Model, s.ModelName(s.Model))
	return err
}

func (h *Handler) cacheInfo(ctx context.Context, out io.Writer) error {
	st := h.svc.Store().Stats(ctx)

	var b strings.Builder
	b.WriteString("💾 **Cache Information**\n\n")
	if st.Total == 0 {
		b.WriteString("**Status:** Empty\n")
	}
	fmt.Fprintf(&b, "**Total Entries:** %d\n", st.Total)
	fmt.Fprintf(&b, "**Active:** %d\n", st.Active)
	fmt.Fprintf(&b, "**Expired:** %d\n", st.Expired)
	fmt.Fprintf(&b, "**Size:** %s\n", humanize.Bytes(uint64(st.ByteSize)))
	fmt.Fprintf(&b, "**Location:** `%s`\n", st.Location)
	fmt.Fprintf(&b, "**Duration:** %d seconds (%d minutes)\n", int64(st.Duration.Seconds()), int64(st.Duration.Minutes()))
	_, err := io.WriteString(out, b.String())
	return err
}

func (h *Handler) clearCache(ctx context.Context, out io.Writer) error {
	n, err := h.svc.Store().Clear(ctx)
	if err != nil {
		_, werr := fmt.Fprintf(out, "❌ **Error clearing cache:** %v\n", err)
		if werr != nil {
			return werr
		}
		return err
	}
	_, err = fmt.Fprintf(out, "🗑️ **Cache Cleared!**\n\nRemoved %d cached entries.\nNext API requests will be fresh calls.\n", n)
	return err
}

func (h *Handler) cleanupCache(ctx context.Context, out io.Writer) error {
	n := h.svc.Store().Prune(ctx)
	_, err := fmt.Fprintf(out, "🧹 **Cache Cleanup Complete!**\n\nRemoved %d expired entries.\n", n)
	return err
}

func (h *Handler) export(format leads.Format, dir string, out io.Writer) error {
	s := h.session
	if len(s.Results) == 0 {
		_, err := io.WriteString(out, "❌ **Error:** No search results to export.\n")
		return err
	}
	if dir == "" {
		dir = h.exportDir
	}

	path, err := leads.Save(dir, format, s.Results, s.ResultsTotal, h.now())
	if err != nil {
		fmt.Fprintf(out, "❌ **Error exporting %s:** %v\n", strings.ToUpper(string(format)), err)
		return err
	}
	h.log.Info().Str("path", path).Int("records", len(s.Results)).Msg("exported search results")

	_, err = fmt.Fprintf(out, "📥 **%s Export Complete!**\n\n**File:** %s\n**Records:** %s\n**Total Available:** %s records\n",
		strings.ToUpper(string(format)), path, humanize.Comma(int64(len(s.Results))), humanize.Comma(int64(s.ResultsTotal)))
	return err
}
