// Package vitals simulates a live vital-sign feed for the selected patient.
// Samples are display-only; they are never persisted or sent anywhere.
package vitals

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Sample is one simulated reading.
type Sample struct {
	Systolic        int
	Diastolic       int
	HeartRate       int
	Temperature     float64
	SpO2            int
	RespiratoryRate int
	At              time.Time
}

func (s Sample) BloodPressure() string {
	return fmt.Sprintf("%d/%d", s.Systolic, s.Diastolic)
}

// Generate draws a sample inside normal adult ranges.
func Generate(rng *rand.Rand, at time.Time) Sample {
	return Sample{
		Systolic:        110 + rng.Intn(30),
		Diastolic:       70 + rng.Intn(20),
		HeartRate:       60 + rng.Intn(40),
		Temperature:     math.Round((36.5+rng.Float64())*10) / 10,
		SpO2:            95 + rng.Intn(5),
		RespiratoryRate: 12 + rng.Intn(8),
		At:              at,
	}
}
