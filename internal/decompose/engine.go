package decompose

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"gmvbridge/internal/core"
)

// Input is everything the engine reads: the monthly views of one snapshot.
type Input struct {
	Core      []core.CoreMetric
	PriceQty  []core.PriceQtyMetric
	Segments  map[core.Dimension][]core.SegmentMetric
	Weighting Weighting
}

// Result holds the effects of every family and the combined waterfall rows.
type Result struct {
	Volume      []VolumeEffect
	PriceBasket []PriceBasketEffect
	Mix         map[core.Dimension][]MixEffect

	// CoreAOV is the order-level AOV of every month with orders. The
	// price/basket bars must agree with it.
	CoreAOV map[core.Month]float64

	// Steps lists the volume waterfall, then one mix waterfall per dimension
	// in core.Dimensions order, then the price/basket waterfall.
	Steps []core.WaterfallStep
}

// StepsFor returns the waterfall rows of one family (and dimension for mix).
func (r Result) StepsFor(f core.Family, dim core.Dimension) []core.WaterfallStep {
	var out []core.WaterfallStep
	for _, s := range r.Steps {
		if s.Family == f && (f != core.FamilyMixLFL || s.Dimension == dim) {
			out = append(out, s)
		}
	}
	return out
}

func (r Result) dimensions() []core.Dimension {
	dims := make([]core.Dimension, 0, len(r.Mix))
	for d := range r.Mix {
		dims = append(dims, d)
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i] < dims[j] })
	return dims
}

// Engine runs the three decompositions concurrently. The zero value is ready
// to use.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Run computes every family. Each goroutine writes only its own slot of the
// result, and the combined step list is assembled in a fixed order afterwards
// so the output does not depend on scheduling.
func (e *Engine) Run(ctx context.Context, in Input) (Result, error) {
	w := in.Weighting
	if w == "" {
		w = RawWeights
	}

	dims := make([]core.Dimension, 0, len(in.Segments))
	for _, d := range core.Dimensions() {
		if _, ok := in.Segments[d]; ok {
			dims = append(dims, d)
		}
	}

	r := Result{
		Mix:     make(map[core.Dimension][]MixEffect, len(dims)),
		CoreAOV: make(map[core.Month]float64, len(in.Core)),
	}
	for _, c := range in.Core {
		if c.AOV != nil {
			r.CoreAOV[c.Month] = *c.AOV
		}
	}
	var volumeSteps, priceBasketSteps []core.WaterfallStep
	mixEffects := make([][]MixEffect, len(dims))
	mixSteps := make([][]core.WaterfallStep, len(dims))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		r.Volume, volumeSteps = VolumeAOV(in.Core)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		r.PriceBasket, priceBasketSteps = PriceBasket(in.PriceQty)
		return nil
	})
	for i, d := range dims {
		i, d := i, d
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			mixEffects[i], mixSteps[i] = MixLFL(in.Core, in.Segments[d], d, w)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	r.Steps = append(r.Steps, volumeSteps...)
	for i, d := range dims {
		r.Mix[d] = mixEffects[i]
		r.Steps = append(r.Steps, mixSteps[i]...)
	}
	r.Steps = append(r.Steps, priceBasketSteps...)
	return r, nil
}
