// Command simulator drives the PagePulse SDK with synthetic user
// activity against a running collector. Useful for exercising the whole
// batching and delivery path without a browser.
package main

import (
	"context"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pagepulse/pagepulse-go/pkg/models"
	"github.com/pagepulse/pagepulse-go/pkg/platform"
	"github.com/pagepulse/pagepulse-go/pkg/sdk"
)

const (
	viewportWidth  = 1280
	viewportHeight = 800
	// maxStepPx bounds one pointer movement step
	maxStepPx = 18.0
)

type cursor struct {
	x, y    float64
	scrollY float64
}

func main() {
	scenario := loadScenario()

	rasterizer := newSyntheticRasterizer(viewportWidth, viewportHeight)

	persistent, err := platform.NewFileStorage(".pagepulse/identity.json")
	if err != nil {
		log.Fatalf("Failed to open identity storage: %v", err)
	}

	client, err := sdk.New(sdk.Config{
		ProjectID:   scenario.ProjectID,
		Endpoint:    scenario.Endpoint,
		Site:        scenario.Site,
		Hostname:    scenario.Hostname,
		Environment: scenario.Environment,
		PageURL:     scenario.PageURL,
		UserAgent:   "pagepulse-simulator",
		ScreenSize:  &models.ScreenSize{Width: viewportWidth, Height: viewportHeight},
		Debug:       scenario.Debug,
	}, sdk.Deps{
		Rasterizer:        rasterizer,
		PersistentStorage: persistent,
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize client: %v", err)
	}
	log.Printf("Simulating %d phases against %s", len(scenario.Phases), scenario.Endpoint)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	cur := &cursor{x: viewportWidth / 2, y: viewportHeight / 2}

	for i, phase := range scenario.Phases {
		if ctx.Err() != nil {
			break
		}
		log.Printf("Phase %d: %s for %s", i+1, phase.Action, phase.Duration)
		runPhase(ctx, client, rasterizer, phase, rng, cur)
	}

	log.Println("Scenario finished, destroying client...")
	if err := client.Destroy(context.Background()); err != nil {
		log.Printf("Destroy failed: %v", err)
	}
	log.Println("Done")
}

func loadScenario() *Scenario {
	if len(os.Args) > 1 {
		scenario, err := LoadScenario(os.Args[1])
		if err != nil {
			log.Fatalf("Failed to load scenario %s: %v", os.Args[1], err)
		}
		return scenario
	}
	log.Println("No scenario file given, using the built-in default")
	return DefaultScenario()
}

func runPhase(ctx context.Context, client *sdk.Client, rasterizer *syntheticRasterizer, phase Phase, rng *rand.Rand, cur *cursor) {
	deadline := time.After(phase.Duration)

	if phase.Action == "idle" {
		select {
		case <-ctx.Done():
		case <-deadline:
		}
		return
	}

	ticker := time.NewTicker(time.Second / time.Duration(phase.Rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-ticker.C:
			switch phase.Action {
			case "move":
				step(rng, cur)
				client.TrackPointerMove(models.Coordinate{
					ClientX:     cur.x,
					ClientY:     cur.y,
					PageX:       cur.x,
					PageY:       cur.y + cur.scrollY,
					PointerType: "mouse",
				})
			case "scroll":
				cur.scrollY += 40 + rng.Float64()*80
				rasterizer.setScroll(cur.scrollY)
				client.TrackScroll()
			case "click":
				client.TrackClick(map[string]any{"x": cur.x, "y": cur.y})
			case "pageview":
				url := phase.URL
				client.TrackPageView(url)
			}
		}
	}
}

// step moves the cursor by a small random displacement, clamped to the
// viewport
func step(rng *rand.Rand, cur *cursor) {
	angle := rng.Float64() * 2 * math.Pi
	magnitude := rng.Float64() * maxStepPx

	cur.x = clamp(cur.x+magnitude*math.Cos(angle), 0, viewportWidth)
	cur.y = clamp(cur.y+magnitude*math.Sin(angle), 0, viewportHeight)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
