package model

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// LSTMParams configures the recurrent classifier.
type LSTMParams struct {
	Hidden       int
	Epochs       int
	LearningRate float64
	// ChunkSize bounds the rows held in memory per forward pass. Gradients
	// are summed across chunks, so every epoch is still one full-batch step.
	ChunkSize int
	LogEvery  int
}

// DefaultLSTMParams returns the production settings.
func DefaultLSTMParams() LSTMParams {
	return LSTMParams{Hidden: 50, Epochs: 100, LearningRate: 0.001, ChunkSize: 4096, LogEvery: 10}
}

// LSTM is a single-layer LSTM followed by a linear projection of the last
// hidden state and a sigmoid. Gate blocks in Wih, Whh and B are ordered
// input, forget, cell, output.
type LSTM struct {
	Input  int
	Hidden int
	Wih    *mat.Dense    // 4H x I
	Whh    *mat.Dense    // 4H x H
	B      *mat.VecDense // 4H
	Wout   *mat.VecDense // H
	BOut   *mat.VecDense // 1
}

// newLSTM initializes every weight uniformly in [-1/sqrt(H), 1/sqrt(H)].
func newLSTM(input, hidden int, rng *rand.Rand) *LSTM {
	k := 1 / math.Sqrt(float64(hidden))
	uniform := func(n int) []float64 {
		d := make([]float64, n)
		for i := range d {
			d[i] = (2*rng.Float64() - 1) * k
		}
		return d
	}
	return &LSTM{
		Input:  input,
		Hidden: hidden,
		Wih:    mat.NewDense(4*hidden, input, uniform(4*hidden*input)),
		Whh:    mat.NewDense(4*hidden, hidden, uniform(4*hidden*hidden)),
		B:      mat.NewVecDense(4*hidden, uniform(4*hidden)),
		Wout:   mat.NewVecDense(hidden, uniform(hidden)),
		BOut:   mat.NewVecDense(1, uniform(1)),
	}
}

// params exposes the backing arrays of every trainable tensor.
func (m *LSTM) params() [][]float64 {
	return [][]float64{
		m.Wih.RawMatrix().Data,
		m.Whh.RawMatrix().Data,
		m.B.RawVector().Data,
		m.Wout.RawVector().Data,
		m.BOut.RawVector().Data,
	}
}

// Predict returns the sigmoid output for each sequence. All sequences must
// have the same length and every step must have Input features.
func (m *LSTM) Predict(seqs [][][]float64) ([]float64, error) {
	if err := m.checkSeqs(seqs); err != nil {
		return nil, err
	}
	const chunk = 4096
	out := make([]float64, 0, len(seqs))
	for lo := 0; lo < len(seqs); lo += chunk {
		hi := min(lo+chunk, len(seqs))
		_, _, probs := m.forward(timeMajor(seqs, lo, hi, m.Input))
		out = append(out, probs...)
	}
	return out, nil
}

func (m *LSTM) checkSeqs(seqs [][][]float64) error {
	if len(seqs) == 0 {
		return nil
	}
	steps := len(seqs[0])
	if steps == 0 {
		return fmt.Errorf("%w: empty sequence", ErrFeatureMismatch)
	}
	for _, s := range seqs {
		if len(s) != steps {
			return fmt.Errorf("%w: ragged sequences", ErrFeatureMismatch)
		}
		if err := checkWidth(s, m.Input); err != nil {
			return err
		}
	}
	return nil
}

// timeMajor packs seqs[lo:hi] into one N x I matrix per time step.
func timeMajor(seqs [][][]float64, lo, hi, input int) []*mat.Dense {
	xs := make([]*mat.Dense, len(seqs[lo]))
	for t := range xs {
		x := mat.NewDense(hi-lo, input, nil)
		for n := lo; n < hi; n++ {
			x.SetRow(n-lo, seqs[n][t])
		}
		xs[t] = x
	}
	return xs
}

// lstmStep caches one time step of the forward pass for backpropagation.
type lstmStep struct {
	x     *mat.Dense
	hPrev *mat.Dense
	cPrev *mat.Dense
	gates *mat.Dense // N x 4H, activated
	tanhC *mat.Dense
}

func (m *LSTM) forward(xs []*mat.Dense) (steps []lstmStep, hT *mat.Dense, probs []float64) {
	n, _ := xs[0].Dims()
	H := m.Hidden
	h := mat.NewDense(n, H, nil)
	c := mat.NewDense(n, H, nil)
	bias := m.B.RawVector().Data
	steps = make([]lstmStep, len(xs))

	for t, x := range xs {
		z := mat.NewDense(n, 4*H, nil)
		z.Mul(x, m.Wih.T())
		var zh mat.Dense
		zh.Mul(h, m.Whh.T())
		z.Add(z, &zh)

		cNext := mat.NewDense(n, H, nil)
		tanhC := mat.NewDense(n, H, nil)
		hNext := mat.NewDense(n, H, nil)
		for r := 0; r < n; r++ {
			zr := z.RawRowView(r)
			cp, cn := c.RawRowView(r), cNext.RawRowView(r)
			tc, hn := tanhC.RawRowView(r), hNext.RawRowView(r)
			for j := 0; j < H; j++ {
				i := sigmoid(zr[j] + bias[j])
				f := sigmoid(zr[H+j] + bias[H+j])
				g := math.Tanh(zr[2*H+j] + bias[2*H+j])
				o := sigmoid(zr[3*H+j] + bias[3*H+j])
				zr[j], zr[H+j], zr[2*H+j], zr[3*H+j] = i, f, g, o
				cn[j] = f*cp[j] + i*g
				tc[j] = math.Tanh(cn[j])
				hn[j] = o * tc[j]
			}
		}
		steps[t] = lstmStep{x: x, hPrev: h, cPrev: c, gates: z, tanhC: tanhC}
		h, c = hNext, cNext
	}

	var logits mat.VecDense
	logits.MulVec(h, m.Wout)
	probs = make([]float64, n)
	for i := range probs {
		probs[i] = sigmoid(logits.AtVec(i) + m.BOut.AtVec(0))
	}
	return steps, h, probs
}

// lstmGrads mirrors the LSTM's trainable tensors.
type lstmGrads struct {
	Wih  *mat.Dense
	Whh  *mat.Dense
	B    *mat.VecDense
	Wout *mat.VecDense
	BOut *mat.VecDense
}

func newLSTMGrads(m *LSTM) *lstmGrads {
	H := m.Hidden
	return &lstmGrads{
		Wih:  mat.NewDense(4*H, m.Input, nil),
		Whh:  mat.NewDense(4*H, H, nil),
		B:    mat.NewVecDense(4*H, nil),
		Wout: mat.NewVecDense(H, nil),
		BOut: mat.NewVecDense(1, nil),
	}
}

func (g *lstmGrads) params() [][]float64 {
	return [][]float64{
		g.Wih.RawMatrix().Data,
		g.Whh.RawMatrix().Data,
		g.B.RawVector().Data,
		g.Wout.RawVector().Data,
		g.BOut.RawVector().Data,
	}
}

// backward accumulates into g the gradients implied by dlogit, the
// derivative of the loss with respect to each pre-sigmoid output.
func (m *LSTM) backward(steps []lstmStep, hT *mat.Dense, dlogit []float64, g *lstmGrads) {
	n := len(dlogit)
	H := m.Hidden
	dl := mat.NewVecDense(n, dlogit)

	var dw mat.VecDense
	dw.MulVec(hT.T(), dl)
	g.Wout.AddVec(g.Wout, &dw)
	g.BOut.SetVec(0, g.BOut.AtVec(0)+mat.Sum(dl))

	dH := mat.NewDense(n, H, nil)
	dH.Outer(1, dl, m.Wout)
	dCNext := mat.NewDense(n, H, nil)
	dZ := mat.NewDense(n, 4*H, nil)
	db := g.B.RawVector().Data

	for t := len(steps) - 1; t >= 0; t-- {
		s := steps[t]
		for r := 0; r < n; r++ {
			gr := s.gates.RawRowView(r)
			dh, dcn := dH.RawRowView(r), dCNext.RawRowView(r)
			tc, cp := s.tanhC.RawRowView(r), s.cPrev.RawRowView(r)
			dz := dZ.RawRowView(r)
			for j := 0; j < H; j++ {
				i, f, gg, o := gr[j], gr[H+j], gr[2*H+j], gr[3*H+j]
				dc := dh[j]*o*(1-tc[j]*tc[j]) + dcn[j]
				dz[j] = dc * gg * i * (1 - i)
				dz[H+j] = dc * cp[j] * f * (1 - f)
				dz[2*H+j] = dc * i * (1 - gg*gg)
				dz[3*H+j] = dh[j] * tc[j] * o * (1 - o)
				dcn[j] = dc * f
			}
			for k, v := range dz {
				db[k] += v
			}
		}

		var gw mat.Dense
		gw.Mul(dZ.T(), s.x)
		g.Wih.Add(g.Wih, &gw)
		var gh mat.Dense
		gh.Mul(dZ.T(), s.hPrev)
		g.Whh.Add(g.Whh, &gh)
		dH.Mul(dZ, m.Whh)
	}
}

// lossAndGrad returns the mean binary cross-entropy over all sequences and
// its full-batch gradient.
func (m *LSTM) lossAndGrad(seqs [][][]float64, y []int, chunk int) (float64, *lstmGrads) {
	g := newLSTMGrads(m)
	total := float64(len(seqs))
	var loss float64
	for lo := 0; lo < len(seqs); lo += chunk {
		hi := min(lo+chunk, len(seqs))
		steps, hT, probs := m.forward(timeMajor(seqs, lo, hi, m.Input))
		dlogit := make([]float64, hi-lo)
		for i, p := range probs {
			target := float64(y[lo+i])
			loss -= target*clampedLog(p) + (1-target)*clampedLog(1-p)
			dlogit[i] = (p - target) / total
		}
		m.backward(steps, hT, dlogit, g)
	}
	return loss / total, g
}

// clampedLog floors log(p) at -100 so a saturated output cannot produce an
// infinite loss.
func clampedLog(p float64) float64 {
	return math.Max(math.Log(p), -100)
}

func (m *LSTM) fit(ctx context.Context, seqs [][][]float64, y []int, p LSTMParams, logger *slog.Logger) (float64, error) {
	opt := newAdam(p.LearningRate, m.params())
	var loss float64
	for epoch := 1; epoch <= p.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var g *lstmGrads
		loss, g = m.lossAndGrad(seqs, y, p.ChunkSize)
		opt.update(m.params(), g.params())
		if logger != nil && p.LogEvery > 0 && epoch%p.LogEvery == 0 {
			logger.Info("lstm training", "epoch", epoch, "epochs", p.Epochs, "loss", loss)
		}
	}
	return loss, nil
}

// adam implements the Adam optimizer with bias correction.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	step  int
	m     [][]float64
	v     [][]float64
}

func newAdam(lr float64, params [][]float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
	for _, p := range params {
		a.m = append(a.m, make([]float64, len(p)))
		a.v = append(a.v, make([]float64, len(p)))
	}
	return a
}

func (a *adam) update(params, grads [][]float64) {
	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))
	for p := range params {
		m, v := a.m[p], a.v[p]
		for i, g := range grads[p] {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			params[p][i] -= a.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + a.eps)
		}
	}
}

// lstmState is the serialized form of an LSTM.
type lstmState struct {
	Input  int       `msgpack:"input"`
	Hidden int       `msgpack:"hidden"`
	Wih    []float64 `msgpack:"w_ih"`
	Whh    []float64 `msgpack:"w_hh"`
	B      []float64 `msgpack:"b"`
	Wout   []float64 `msgpack:"w_out"`
	BOut   float64   `msgpack:"b_out"`
}

func (m *LSTM) state() lstmState {
	p := m.params()
	return lstmState{
		Input:  m.Input,
		Hidden: m.Hidden,
		Wih:    p[0],
		Whh:    p[1],
		B:      p[2],
		Wout:   p[3],
		BOut:   p[4][0],
	}
}

func lstmFromState(s lstmState) (*LSTM, error) {
	H, I := s.Hidden, s.Input
	if H <= 0 || I <= 0 || len(s.Wih) != 4*H*I || len(s.Whh) != 4*H*H || len(s.B) != 4*H || len(s.Wout) != H {
		return nil, fmt.Errorf("%w: lstm tensor shapes do not match input=%d hidden=%d", ErrCorruptArtifact, I, H)
	}
	return &LSTM{
		Input:  I,
		Hidden: H,
		Wih:    mat.NewDense(4*H, I, s.Wih),
		Whh:    mat.NewDense(4*H, H, s.Whh),
		B:      mat.NewVecDense(4*H, s.B),
		Wout:   mat.NewVecDense(H, s.Wout),
		BOut:   mat.NewVecDense(1, []float64{s.BOut}),
	}, nil
}
