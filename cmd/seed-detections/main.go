// Command seed-detections loads synthetic vehicle detections for a junction so
// the dashboard can be exercised without live scanners.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"flextraff-service/internal/config"
	"flextraff-service/internal/db"
	"flextraff-service/internal/domain/traffic"
	"flextraff-service/internal/logger"
	"flextraff-service/internal/repository"
)

// LaneCount is one CSV row: how many vehicles of a type crossed a lane.
type LaneCount struct {
	Lane        int
	VehicleType string
	Count       int
}

func main() {
	junctionID := flag.Int64("junction", 0, "junction id to seed (required)")
	csvPath := flag.String("csv", "", "CSV of lane_number,vehicle_type,count; random counts when empty")
	total := flag.Int("count", 200, "number of random detections when no CSV is given")
	window := flag.Duration("window", 15*time.Minute, "detections are spread over this window ending now")
	flag.Parse()

	if *junctionID <= 0 {
		fmt.Println("Usage: seed-detections -junction <id> [-csv counts.csv] [-count 200] [-window 15m]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var counts []LaneCount
	if *csvPath != "" {
		f, err := os.Open(*csvPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *csvPath).Msg("failed to open csv")
		}
		counts, err = readCounts(f)
		f.Close()
		if err != nil {
			log.Fatal().Err(err).Str("path", *csvPath).Msg("failed to read csv")
		}
	} else {
		counts = randomCounts(rng, *total)
	}

	events := buildDetections(*junctionID, counts, time.Now().UTC(), *window, rng)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	repo := repository.NewTrafficRepository(database)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := repo.GetJunction(ctx, *junctionID); err != nil {
		log.Fatal().Err(err).Int64("junction_id", *junctionID).Msg("junction lookup failed")
	}
	if err := repo.InsertDetections(ctx, events); err != nil {
		log.Fatal().Err(err).Msg("failed to insert detections")
	}

	log.Info().
		Int64("junction_id", *junctionID).
		Int("detections", len(events)).
		Dur("window", *window).
		Msg("detections seeded")
}

// readCounts parses lane_number,vehicle_type,count rows after a header line.
// Blank lines and rows with a zero count are skipped.
func readCounts(r io.Reader) ([]LaneCount, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var out []LaneCount
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		if len(record) < 3 || strings.TrimSpace(record[0]) == "" {
			continue
		}

		lane, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil || !traffic.Lane(lane).Valid() {
			return nil, fmt.Errorf("line %d: invalid lane %q", line, record[0])
		}
		count, err := strconv.Atoi(strings.TrimSpace(record[2]))
		if err != nil || count < 0 {
			return nil, fmt.Errorf("line %d: invalid count %q", line, record[2])
		}
		if count == 0 {
			continue
		}
		vehicleType := strings.ToLower(strings.TrimSpace(record[1]))
		if vehicleType == "" {
			vehicleType = "car"
		}
		out = append(out, LaneCount{Lane: lane, VehicleType: vehicleType, Count: count})
	}
	return out, nil
}

func randomCounts(rng *rand.Rand, total int) []LaneCount {
	counts := make([]LaneCount, len(traffic.Lanes))
	for i, l := range traffic.Lanes {
		counts[i] = LaneCount{Lane: int(l), VehicleType: "car"}
	}
	for i := 0; i < total; i++ {
		counts[rng.Intn(len(counts))].Count++
	}
	return counts
}

// buildDetections expands counts into events spread across the window ending
// at end, in random order.
func buildDetections(junctionID int64, counts []LaneCount, end time.Time, window time.Duration, rng *rand.Rand) []traffic.DetectionEvent {
	var events []traffic.DetectionEvent
	for _, c := range counts {
		for i := 0; i < c.Count; i++ {
			events = append(events, traffic.DetectionEvent{
				JunctionID:  junctionID,
				Lane:        c.Lane,
				VehicleType: c.VehicleType,
			})
		}
	}
	rng.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })

	if len(events) == 0 {
		return events
	}
	step := window / time.Duration(len(events))
	start := end.Add(-window)
	for i := range events {
		events[i].DetectedAt = start.Add(step * time.Duration(i+1))
	}
	return events
}
