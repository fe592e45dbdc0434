package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/datahub-project/datahub-upgrade/internal/artifact"
	"github.com/datahub-project/datahub-upgrade/internal/model"
	"github.com/datahub-project/datahub-upgrade/internal/store"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
}

func printJSON(w io.Writer, v any) error {
	str, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(str))
	return err
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func formatResult(result map[string]string) string {
	if len(result) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+result[k])
	}
	return strings.Join(parts, ",")
}

type resultView struct {
	UpgradeID string              `json:"upgradeId"`
	Result    model.UpgradeResult `json:"result"`
}

func printResult(w io.Writer, upgradeID string, result model.UpgradeResult, format string) error {
	if format == formatJSON {
		return printJSON(w, resultView{UpgradeID: upgradeID, Result: result})
	}

	tw := newTabWriter(w)
	defer tw.Flush()

	fmtColumns := "%s\t%s\t%s\t%s\n"
	fmt.Fprintf(tw, fmtColumns, "UPGRADE", "STATE", "STARTED", "RESULT")
	fmt.Fprintf(tw, fmtColumns, upgradeID, result.EffectiveState(), formatTimestamp(result.TimestampMs), formatResult(result.Result))
	return nil
}

type historyView struct {
	Version   int64               `json:"version"`
	CreatedAt time.Time           `json:"createdAt"`
	Result    model.UpgradeResult `json:"result"`
}

func printHistory(w io.Writer, versions []store.Versioned, format string) error {
	if format == formatJSON {
		views := make([]historyView, 0, len(versions))
		for _, v := range versions {
			views = append(views, historyView{Version: v.Version, CreatedAt: v.CreatedAt, Result: v.Result})
		}
		return printJSON(w, views)
	}

	tw := newTabWriter(w)
	defer tw.Flush()

	fmtColumns := "%v\t%s\t%s\t%s\n"
	fmt.Fprintf(tw, fmtColumns, "VERSION", "STATE", "STARTED", "RESULT")
	for _, v := range versions {
		fmt.Fprintf(tw, fmtColumns, v.Version, v.Result.EffectiveState(), formatTimestamp(v.Result.TimestampMs), formatResult(v.Result.Result))
	}
	return nil
}

type upgradeView struct {
	UpgradeID   string             `json:"upgradeId"`
	Steps       []string           `json:"steps"`
	State       model.UpgradeState `json:"state,omitempty"`
	TimestampMs int64              `json:"timestampMs,omitempty"`
}

func printUpgrades(w io.Writer, upgrades []upgradeView, format string) error {
	if format == formatJSON {
		return printJSON(w, upgrades)
	}

	tw := newTabWriter(w)
	defer tw.Flush()

	fmtColumns := "%s\t%s\t%s\t%s\n"
	fmt.Fprintf(tw, fmtColumns, "UPGRADE", "STEPS", "LAST STATE", "STARTED")
	for _, u := range upgrades {
		state := string(u.State)
		if state == "" {
			state = "-"
		}
		fmt.Fprintf(tw, fmtColumns, u.UpgradeID, strings.Join(u.Steps, ","), state, formatTimestamp(u.TimestampMs))
	}
	return nil
}

type planView struct {
	Version    string   `json:"version"`
	Archive    string   `json:"archive"`
	Image      string   `json:"image"`
	DockerArgs []string `json:"dockerArgs"`
}

func printPlan(w io.Writer, plan *artifact.Plan, format string) error {
	if format == formatJSON {
		return printJSON(w, planView{
			Version:    plan.Version,
			Archive:    plan.Archive,
			Image:      plan.Image,
			DockerArgs: plan.DockerArgs(),
		})
	}

	tw := newTabWriter(w)
	fmt.Fprintf(tw, "Version:\t%s\n", plan.Version)
	fmt.Fprintf(tw, "Archive:\t%s\n", plan.Archive)
	fmt.Fprintf(tw, "Image:\t%s\n", plan.Image)
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\ndocker %s\n", strings.Join(plan.DockerArgs(), " "))
	return err
}
