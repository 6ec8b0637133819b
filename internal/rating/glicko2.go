package rating

import "math"

// Glicko-2 parameters shared by every dimension.
const (
	InitialRating     = 1500.0
	InitialDeviation  = 350.0
	InitialVolatility = 0.06

	tau     = 0.5
	epsilon = 1e-6
	scale   = 173.7178
)

// Rating is a display-scale Glicko-2 rating (1500-centered).
// MatchCount tracks how many matches fed this rating; the math
// functions leave it alone.
type Rating struct {
	Rating     float64
	RD         float64
	Volatility float64
	MatchCount int
}

// NewRating returns the rating assigned to a player with no history.
func NewRating() Rating {
	return Rating{Rating: InitialRating, RD: InitialDeviation, Volatility: InitialVolatility}
}

// GameResult is one game against one opponent within a rating period.
// Score is 1 for a win, 0.5 for a draw, 0 for a loss.
type GameResult struct {
	Opponent Rating
	Score    float64
}

// glicko2Rating is a rating on the internal Glicko-2 scale.
type glicko2Rating struct {
	mu    float64
	phi   float64
	sigma float64
}

func toInternal(r Rating) glicko2Rating {
	return glicko2Rating{
		mu:    (r.Rating - InitialRating) / scale,
		phi:   r.RD / scale,
		sigma: r.Volatility,
	}
}

func toDisplay(r glicko2Rating) Rating {
	return Rating{
		Rating:     r.mu*scale + InitialRating,
		RD:         r.phi * scale,
		Volatility: r.sigma,
	}
}

// g reduces the impact of opponents with high rating uncertainty.
func g(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

// expected is the expected score against opponent (muJ, phiJ).
func expected(mu, muJ, phiJ float64) float64 {
	return 1 / (1 + math.Exp(-g(phiJ)*(mu-muJ)))
}

// newVolatility solves for sigma' with the Illinois variant of regula falsi
// (step 5 of the Glicko-2 algorithm).
func newVolatility(sigma, phi, v, delta float64) float64 {
	a := math.Log(sigma * sigma)
	deltaSq := delta * delta
	phiSq := phi * phi

	f := func(x float64) float64 {
		ex := math.Exp(x)
		num1 := ex * (deltaSq - phiSq - v - ex)
		den1 := 2 * (phiSq + v + ex) * (phiSq + v + ex)
		return num1/den1 - (x-a)/(tau*tau)
	}

	A := a
	var B float64
	if deltaSq > phiSq+v {
		B = math.Log(deltaSq - phiSq - v)
	} else {
		k := 1.0
		for f(a-k*tau) < 0 {
			k++
		}
		B = a - k*tau
	}

	fA := f(A)
	fB := f(B)
	for math.Abs(B-A) > epsilon {
		C := A + (A-B)*fA/(fB-fA)
		fC := f(C)
		if fC*fB <= 0 {
			A = B
			fA = fB
		} else {
			fA /= 2
		}
		B = C
		fB = fC
	}
	return math.Exp(A / 2)
}

// Update runs a full Glicko-2 rating period for one player.
// With no games played only the deviation grows (step 6 shortcut).
func Update(player Rating, results []GameResult) Rating {
	p := toInternal(player)

	if len(results) == 0 {
		p.phi = math.Sqrt(p.phi*p.phi + p.sigma*p.sigma)
		return toDisplay(p)
	}

	opponents := make([]glicko2Rating, len(results))
	for i, res := range results {
		opponents[i] = toInternal(res.Opponent)
	}

	// Step 3: estimated variance.
	vInv := 0.0
	for i := range results {
		gPhi := g(opponents[i].phi)
		e := expected(p.mu, opponents[i].mu, opponents[i].phi)
		vInv += gPhi * gPhi * e * (1 - e)
	}
	v := 1 / vInv

	// Step 4: estimated improvement.
	deltaSum := 0.0
	for i, res := range results {
		deltaSum += g(opponents[i].phi) * (res.Score - expected(p.mu, opponents[i].mu, opponents[i].phi))
	}
	delta := v * deltaSum

	// Steps 5-7.
	sigma := newVolatility(p.sigma, p.phi, v, delta)
	phiStar := math.Sqrt(p.phi*p.phi + sigma*sigma)
	phi := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	mu := p.mu + phi*phi*deltaSum

	return toDisplay(glicko2Rating{mu: mu, phi: phi, sigma: sigma})
}

// Round snaps a rating to display precision: whole rating points,
// deviation to 2 decimals, volatility to 4.
func Round(r Rating) Rating {
	return Rating{
		Rating:     math.Round(r.Rating),
		RD:         math.Round(r.RD*100) / 100,
		Volatility: math.Round(r.Volatility*10000) / 10000,
		MatchCount: r.MatchCount,
	}
}
