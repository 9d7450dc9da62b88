package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/swarmvins/config"
	"go.viam.com/swarmvins/graph"
	"go.viam.com/swarmvins/landmark"
	"go.viam.com/swarmvins/logging"
	"go.viam.com/swarmvins/residual"
	"go.viam.com/swarmvins/spatialmath"
	"go.viam.com/swarmvins/state"
)

// replay loads a scenario into a fresh window, builds one solve pass over it and writes a
// summary of the resulting problem to w.
func replay(ctx context.Context, cfg config.Config, sc *scenario, logger logging.Logger, w io.Writer) error {
	st := state.New()
	for cam := 0; cam < cfg.CameraNum; cam++ {
		st.SetExtrinsic(cam, spatialmath.NewZeroPose())
	}
	for _, e := range sc.Extrinsics {
		if e.Camera < 0 || e.Camera >= cfg.CameraNum {
			return errors.Errorf("extrinsic for camera %d but camera_num is %d", e.Camera, cfg.CameraNum)
		}
		pose, err := e.pose()
		if err != nil {
			return errors.Wrapf(err, "extrinsic of camera %d", e.Camera)
		}
		st.SetExtrinsic(e.Camera, pose)
	}

	lm := landmark.NewManager(cfg, logger.Sublogger("landmark"))
	for _, f := range sc.Frames {
		pose, err := f.pose()
		if err != nil {
			return errors.Wrapf(err, "frame %d", f.ID)
		}
		id := state.FrameID(f.ID)
		if err := st.AddFrame(id, pose); err != nil {
			return err
		}
		if err := st.SetFrameStamp(id, f.Stamp, f.Drone); err != nil {
			return err
		}
		kf, err := f.keyframe()
		if err != nil {
			return err
		}
		if err := lm.Observe(kf); err != nil {
			return err
		}
	}
	initialized, err := lm.InitializeFromDepth(st)
	if err != nil {
		return err
	}

	reg := graph.NewRegistry()
	defer reg.Release()
	b := graph.NewBuilder(cfg, st, lm, logger.Sublogger("graph"))
	if err := b.CheckWindow(); err != nil {
		if errors.Is(err, graph.ErrWindowTooSmall) {
			fmt.Fprintf(w, "pass %s skipped: %v\n", reg.ID(), err)
			return nil
		}
		return err
	}
	for _, e := range sc.Edges {
		edge, err := e.loopEdge()
		if err != nil {
			return err
		}
		if e.Loop {
			_, err = b.AddLoop(reg, edge)
		} else {
			_, err = b.AddRelPose(reg, edge)
		}
		if err != nil {
			return err
		}
	}
	if _, err := b.AddLandmarks(ctx, reg); err != nil {
		return err
	}
	residuals := reg.Residuals()
	rejected, err := b.RejectOutliers(ctx, residuals)
	if err != nil {
		return err
	}
	results, err := graph.EvaluateAll(ctx, st, residuals, false)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "pass %s: %d frames, %d landmarks tracked, %d eligible, %d initialized\n",
		reg.ID(), st.NumFrames(), lm.Len(), len(lm.Eligible()), initialized)
	writeSummary(w, residuals, results)
	if len(rejected) > 0 {
		fmt.Fprintf(w, "rejected landmarks: %v\n", rejected)
	}

	if !cfg.EnableMarginalization || st.NumFrames() <= cfg.MaxSldWinSize {
		return nil
	}
	oldest := st.FrameIDs()[0]
	plan, err := graph.PlanMarginalization(ctx, st, residuals, state.NewFrameSet(oldest))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "marginalize frame %d: %d residuals, remove %d blocks, keep %d blocks\n",
		oldest, len(plan.Residuals), len(plan.Remove), len(plan.Keep))
	prior, err := graph.Marginalize(ctx, st, plan)
	if err != nil {
		return err
	}
	if prior != nil {
		fmt.Fprintf(w, "prior: %d residuals over frames %v\n", prior.CostFunction().NumResiduals(), prior.Frames())
	}
	return nil
}

type kindSummary struct {
	count, failed int
	cost          float64
	norms         []float64
}

// writeSummary renders one row per residual kind: how many there are, how many could not
// be evaluated, their total robustified cost and the median residual norm.
func writeSummary(w io.Writer, residuals []*residual.Info, results []graph.EvalResult) {
	byKind := map[residual.Kind]*kindSummary{}
	for i, info := range residuals {
		ks, ok := byKind[info.Kind()]
		if !ok {
			ks = &kindSummary{}
			byKind[info.Kind()] = ks
		}
		ks.count++
		if results[i].Err != nil {
			ks.failed++
			continue
		}
		ks.cost += results[i].Evaluation.Cost
		ks.norms = append(ks.norms, math.Sqrt(results[i].Evaluation.SquaredNorm))
	}
	kinds := lo.Keys(byKind)
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Kind", "Count", "Failed", "Cost", "Median norm"})
	total := 0.0
	for _, k := range kinds {
		ks := byKind[k]
		median, err := stats.Median(ks.norms)
		if err != nil {
			median = math.NaN()
		}
		total += ks.cost
		t.AppendRow(table.Row{k.String(), ks.count, ks.failed, fmt.Sprintf("%.6g", ks.cost), fmt.Sprintf("%.4g", median)})
	}
	t.AppendFooter(table.Row{"total", len(residuals), "", fmt.Sprintf("%.6g", total), ""})
	t.Render()
}
