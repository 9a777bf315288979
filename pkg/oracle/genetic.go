package oracle

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// GeneticAlgorithm is adapted from the teacher's
// pkg/outrights/solver.go GeneticAlgorithm: a small parallel-fitness
// elitist GA for bounded scalar/vector minimization. The original used it
// to search whole team-rating vectors against an RMS match-odds error;
// MTS's IPF loop (training.go) replaces that use for Poisson strengths,
// but the optimizer itself still has a real job here: fitting a league's
// home_advantage statistic against realized match outcomes when
// recomputing league statistics (leagues.go), a scalar/low-dimensional
// search exactly like the teacher's original bounded continuous problem.
type GeneticAlgorithm struct {
	generations         int
	populationSize      int
	mutationFactor      float64
	eliteRatio          float64
	initStd             float64
	decayExponent       float64
	mutationProbability float64
}

type geneticIndividual struct {
	genes   []float64
	fitness float64
}

type geneticPopulation []geneticIndividual

func (p geneticPopulation) Len() int           { return len(p) }
func (p geneticPopulation) Less(i, j int) bool { return p[i].fitness < p[j].fitness }
func (p geneticPopulation) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

// NewGeneticAlgorithm returns a GA tuned with the teacher's defaults
// (pkg/outrights/api.go Simulate's fallback option block), scaled down
// for the smaller search spaces this repo uses it for.
func NewGeneticAlgorithm() *GeneticAlgorithm {
	return &GeneticAlgorithm{
		generations:         150,
		populationSize:      24,
		mutationFactor:       0.15,
		eliteRatio:          0.15,
		initStd:             0.2,
		decayExponent:       0.5,
		mutationProbability: 0.3,
	}
}

// Optimize minimizes objectiveFn over x0 within bounds, evaluating each
// generation's population fitness concurrently (kept from the teacher's
// sync.WaitGroup fan-out).
func (ga *GeneticAlgorithm) Optimize(objectiveFn func([]float64) float64, x0 []float64, bounds [][2]float64) ([]float64, float64) {
	nParams := len(x0)
	nElite := int(math.Max(1, float64(ga.populationSize)*ga.eliteRatio))

	population := make(geneticPopulation, ga.populationSize)
	population[0] = geneticIndividual{genes: append([]float64{}, x0...)}
	for i := 1; i < ga.populationSize; i++ {
		genes := make([]float64, nParams)
		for j := 0; j < nParams; j++ {
			genes[j] = bounds[j][0] + rand.Float64()*(bounds[j][1]-bounds[j][0])
		}
		population[i] = geneticIndividual{genes: genes}
	}

	bestFitness := math.Inf(1)
	var bestSolution []float64

	for generation := 0; generation < ga.generations; generation++ {
		var wg sync.WaitGroup
		for i := range population {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				population[idx].fitness = objectiveFn(population[idx].genes)
			}(i)
		}
		wg.Wait()

		sort.Sort(population)
		if population[0].fitness < bestFitness {
			bestFitness = population[0].fitness
			bestSolution = append([]float64{}, population[0].genes...)
		}

		if generation%25 == 0 {
			fitnesses := make([]float64, len(population))
			for i, ind := range population {
				fitnesses[i] = ind.fitness
			}
			log.Debug().Int("generation", generation).Float64("best", bestFitness).
				Float64("fitness_spread", stdDeviation(fitnesses)).Msg("genetic algorithm generation")
		}

		newPopulation := make(geneticPopulation, ga.populationSize)
		for i := 0; i < nElite; i++ {
			newPopulation[i] = geneticIndividual{genes: append([]float64{}, population[i].genes...), fitness: population[i].fitness}
		}

		timeRemaining := float64(ga.generations-generation) / float64(ga.generations)
		decay := math.Pow(timeRemaining, ga.decayExponent)
		mutationFactor := ga.mutationFactor * decay

		for i := nElite; i < ga.populationSize; i++ {
			parent := population[rand.Intn(nElite)]
			offspring := geneticIndividual{genes: append([]float64{}, parent.genes...)}
			for j := 0; j < nParams; j++ {
				if rand.Float64() < ga.mutationProbability {
					offspring.genes[j] += rand.NormFloat64() * mutationFactor
					offspring.genes[j] = math.Max(bounds[j][0], math.Min(bounds[j][1], offspring.genes[j]))
				}
			}
			newPopulation[i] = offspring
		}
		population = newPopulation
	}

	log.Debug().Float64("fitness", bestFitness).Msg("genetic algorithm converged")
	return bestSolution, bestFitness
}
