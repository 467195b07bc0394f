package main

import (
	"fmt"
	"io"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/kristerhedfors/toolcall"
	"github.com/kristerhedfors/toolcall/completion"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	var (
		system      string
		model       string
		showMetrics bool
	)
	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send one prompt and stream the answer, running any requested functions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if model == "" {
				model = a.cfg.API.Model
			}
			httpClient := completion.NewHTTPClient(a.cfg.API.Timeout)
			defer httpClient.CloseIdleConnections()
			client := completion.New(
				completion.WithBaseURL(a.cfg.API.BaseURL),
				completion.WithAPIKey(a.cfg.API.Key),
				completion.WithHTTPClient(httpClient),
				completion.WithMaxRetries(a.cfg.API.MaxRetries),
				completion.WithRateLimit(a.cfg.RateLimit.RPS, a.cfg.RateLimit.Burst),
				completion.WithLogger(a.logger),
			)
			out := cmd.OutOrStdout()
			narrator := &toolcall.TextNarrator{
				Write: func(msg string) { fmt.Fprintln(cmd.ErrOrStderr(), "  "+msg) },
				Gate:  toolcall.NewCategories(a.cfg.Debug.Categories...),
			}
			orch := toolcall.NewOrchestrator(a.exec, toolcall.WithOrchestratorLogger(a.logger))
			pipe := toolcall.NewPipeline(client, orch, model,
				toolcall.WithPipelineLogger(a.logger),
				toolcall.WithNarrator(narrator),
				toolcall.WithContentHandler(func(delta string) { fmt.Fprint(out, delta) }),
			)

			var messages []toolcall.Message
			if system != "" {
				messages = append(messages, toolcall.Message{Role: toolcall.RoleSystem, Content: system})
			}
			messages = append(messages, toolcall.Message{Role: toolcall.RoleUser, Content: strings.Join(args, " ")})
			if _, err := pipe.Run(ctx, messages); err != nil {
				return err
			}
			fmt.Fprintln(out)
			if showMetrics {
				return writeMetrics(cmd.ErrOrStderr(), a)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&system, "system", "s", "", "system prompt")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model override")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print execution metrics after the answer")
	return cmd
}

func writeMetrics(w io.Writer, a *app) error {
	families, err := a.metrics.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fmt.Fprintf(w, "%s{%s} %s\n", mf.GetName(), labels(m), value(mf.GetType(), m))
		}
	}
	return nil
}

func labels(m *dto.Metric) string {
	parts := make([]string, 0, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		parts = append(parts, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	return strings.Join(parts, ",")
}

func value(t dto.MetricType, m *dto.Metric) string {
	switch t {
	case dto.MetricType_COUNTER:
		return fmt.Sprintf("%g", m.GetCounter().GetValue())
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		return fmt.Sprintf("count=%d sum=%gs", h.GetSampleCount(), h.GetSampleSum())
	default:
		return m.String()
	}
}
