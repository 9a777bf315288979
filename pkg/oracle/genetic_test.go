package oracle

import "testing"

// TestGeneticAlgorithm mirrors the teacher's own test of the same
// optimizer: minimize a simple convex bowl and check convergence lands
// within tolerance of the known minimum.
func TestGeneticAlgorithm(t *testing.T) {
	ga := NewGeneticAlgorithm()
	objective := func(genes []float64) float64 {
		dx := genes[0] - 0.42
		return dx * dx
	}
	best, fitness := ga.Optimize(objective, []float64{0.5}, [][2]float64{{0.0, 1.0}})
	if len(best) != 1 {
		t.Fatalf("expected a single-gene solution, got %v", best)
	}
	if abs(best[0]-0.42) > 0.05 {
		t.Errorf("genetic algorithm converged to %f, want close to 0.42", best[0])
	}
	if fitness > 0.01 {
		t.Errorf("expected near-zero fitness at convergence, got %f", fitness)
	}
}

func TestGeneticAlgorithmRespectsBounds(t *testing.T) {
	ga := NewGeneticAlgorithm()
	objective := func(genes []float64) float64 {
		// minimum lies outside the bounds; optimizer should still return
		// something within [0.2, 0.3].
		dx := genes[0] - 10.0
		return dx * dx
	}
	best, _ := ga.Optimize(objective, []float64{0.25}, [][2]float64{{0.2, 0.3}})
	if best[0] < 0.2 || best[0] > 0.3 {
		t.Errorf("genetic algorithm returned %f outside bounds [0.2,0.3]", best[0])
	}
}
