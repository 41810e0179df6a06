// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package behavior

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func floodObservation(src string) PacketObservation {
	return PacketObservation{
		SrcAddr: src, DstAddr: "10.0.0.1", DstPort: 80,
		Bytes: 60, IsTCP: true, SYN: true,
	}
}

func TestDetectorBelowMinSamplesNoAttack(t *testing.T) {
	d := New(Config{MinSamples: 1000, AnomalyThreshold: 0.8, Window: 0, LearningRate: 0.1})
	d.Observe("10.0.0.1", floodObservation("1.2.3.4"))

	attack := d.Evaluate("10.0.0.1")
	require.Nil(t, attack)
}

func TestDetectorDetectsSynFloodOnceTrained(t *testing.T) {
	d := New(Config{MinSamples: 10, AnomalyThreshold: 0.5, Window: 0, LearningRate: 0.3})

	// Train baseline on ordinary traffic.
	for round := 0; round < 20; round++ {
		for i := 0; i < 15; i++ {
			d.Observe("10.0.0.1", PacketObservation{
				SrcAddr: "1.2.3.4", DstAddr: "10.0.0.1", DstPort: 443,
				Bytes: 500, IsTCP: true, ACK: true,
			})
		}
		d.Evaluate("10.0.0.1")
	}

	// Now a SYN flood from many sources.
	for i := 0; i < 2000; i++ {
		d.Observe("10.0.0.1", floodObservation(randSrc(i)))
	}

	attack := d.Evaluate("10.0.0.1")
	require.NotNil(t, attack)
	require.Equal(t, AttackSynFlood, attack.Type)
	require.LessOrEqual(t, len(attack.Sources), topSourcesLimit)
}

func TestDetectorEndedAfterHysteresis(t *testing.T) {
	d := New(Config{MinSamples: 10, AnomalyThreshold: 0.5, Window: 0, LearningRate: 0.3})

	for round := 0; round < 20; round++ {
		for i := 0; i < 15; i++ {
			d.Observe("10.0.0.1", PacketObservation{
				SrcAddr: "1.2.3.4", DstAddr: "10.0.0.1", DstPort: 443,
				Bytes: 500, IsTCP: true, ACK: true,
			})
		}
		d.Evaluate("10.0.0.1")
	}

	for i := 0; i < 2000; i++ {
		d.Observe("10.0.0.1", floodObservation(randSrc(i)))
	}
	attack := d.Evaluate("10.0.0.1")
	require.NotNil(t, attack)
	require.Equal(t, StatusDetected, attack.Status)

	for i := 0; i < endedHysteresisWindows; i++ {
		for j := 0; j < 15; j++ {
			d.Observe("10.0.0.1", PacketObservation{
				SrcAddr: "1.2.3.4", DstAddr: "10.0.0.1", DstPort: 443,
				Bytes: 500, IsTCP: true, ACK: true,
			})
		}
		attack = d.Evaluate("10.0.0.1")
	}

	require.NotNil(t, attack)
	require.Equal(t, StatusEnded, attack.Status)
}

func randSrc(i int) string {
	return "203.0.113." + string(rune('0'+(i%200)%10))
}

func TestDetectorDestinationsTracksObservedDestinations(t *testing.T) {
	d := New(DefaultConfig())
	require.Empty(t, d.Destinations())

	d.Observe("10.0.0.1", floodObservation("1.2.3.4"))
	d.Observe("10.0.0.2", floodObservation("1.2.3.4"))

	require.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, d.Destinations())
}
