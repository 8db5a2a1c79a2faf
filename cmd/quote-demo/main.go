// README: Demo CLI: prices a route against the default settings in memory and prints the breakdown and offer.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"freightquote/internal/ai"
	"freightquote/internal/maps"
	"freightquote/internal/modules/aiusage"
	"freightquote/internal/modules/costing"
	"freightquote/internal/modules/location"
	"freightquote/internal/modules/offer"
	"freightquote/internal/modules/settings"
)

func main() {
	var (
		segmentsFlag = flag.String("segments", "DE:100:2", "route legs as COUNTRY:KM:HOURS, comma separated")
		origin       = flag.String("origin", "", "origin address (needs QUOTE_MAPS_API_KEY, overrides -segments)")
		destination  = flag.String("destination", "", "destination address")
		vehicle      = flag.String("vehicle", settings.DefaultVehicleType, "vehicle type")
		cargo        = flag.String("cargo", "", "cargo type, e.g. hazardous")
		margin       = flag.String("margin", "0.2", "offer margin")
		byCountry    = flag.Bool("by-country", false, "break components down per country")
		strict       = flag.Bool("strict", false, "fail on missing rates instead of skipping")
	)
	flag.Parse()

	logger := zap.NewNop()
	if os.Getenv("QUOTE_DEMO_VERBOSE") != "" {
		logger, _ = zap.NewDevelopment()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m, err := decimal.NewFromString(*margin)
	if err != nil {
		log.Fatalf("margin: %v", err)
	}

	cmd := costing.CalculateCommand{
		Vehicle:                 &costing.VehicleSpec{Type: *vehicle},
		IncludeCountryBreakdown: *byCountry,
		Strict:                  strict,
	}
	if *cargo != "" {
		cmd.Cargo = &costing.CargoSpec{Type: *cargo}
	}

	var routes costing.RouteResolver
	if *origin != "" {
		router, err := maps.NewRouteService(os.Getenv("QUOTE_MAPS_API_KEY"))
		if err != nil {
			log.Fatalf("maps: %v", err)
		}
		routes = location.NewService(router, nil, 10*time.Second, logger)
		cmd.Origin, cmd.Destination = *origin, *destination
	} else {
		segs, err := parseSegments(*segmentsFlag)
		if err != nil {
			log.Fatalf("segments: %v", err)
		}
		cmd.Segments = segs
	}

	settingsSvc := settings.NewService(settings.NewMemoryStore(), logger)
	costSvc := costing.NewService(costing.NewMemoryStore(), settingsSvc, nil, routes, logger, costing.Config{})
	offerSvc := offer.NewService(offer.NewMemoryStore(), costSvc, funFacts(ctx, logger), logger)

	o, err := offerSvc.Create(ctx, offer.CreateCommand{Calculate: &cmd, Margin: m, Actor: "demo"})
	if err != nil {
		log.Fatalf("quote failed: %v", err)
	}
	cost, err := costSvc.Get(ctx, o.CostID)
	if err != nil {
		log.Fatalf("load cost: %v", err)
	}

	fmt.Printf("settings %s/%s, method %s\n\n", cost.SettingsScope, cost.SettingsVersion, cost.Method)
	for _, c := range cost.Breakdown.Components {
		fmt.Printf("  %-12s %-3s %10s %s\n", c.Type, c.Country, c.Amount.StringFixed(2), cost.Breakdown.Currency)
	}
	for _, sk := range cost.Breakdown.Skipped {
		fmt.Printf("  skipped %s for %s (%s)\n", sk.Component, sk.Country, sk.VehicleType)
	}
	fmt.Printf("\n  total        %14s %s\n", cost.Breakdown.TotalCost.StringFixed(2), cost.Breakdown.Currency)
	fmt.Printf("  offer        %14s %s (margin %s)\n", o.FinalPrice.StringFixed(2), o.Currency, o.Margin)
	if o.FunFact != "" {
		fmt.Printf("\n%s\n", o.FunFact)
	}
	if os.Getenv("QUOTE_DEMO_JSON") != "" {
		out, _ := json.MarshalIndent(o, "", "  ")
		fmt.Println(string(out))
	}
}

func parseSegments(raw string) ([]costing.Segment, error) {
	var segs []costing.Segment
	for _, part := range strings.Split(raw, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("want COUNTRY:KM:HOURS, got %q", part)
		}
		km, err := decimal.NewFromString(fields[1])
		if err != nil {
			return nil, fmt.Errorf("distance %q: %w", fields[1], err)
		}
		hours, err := decimal.NewFromString(fields[2])
		if err != nil {
			return nil, fmt.Errorf("duration %q: %w", fields[2], err)
		}
		segs = append(segs, costing.Segment{Country: strings.ToUpper(fields[0]), DistanceKm: km, DurationHours: hours})
	}
	return segs, nil
}

func funFacts(ctx context.Context, logger *zap.Logger) offer.FunFactProvider {
	var chain ai.Chain
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if p, err := ai.NewGeminiProvider(ctx, key); err == nil {
			chain = append(chain, p)
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		chain = append(chain, ai.NewChatGPTProvider(key, "", nil))
	}
	if len(chain) == 0 {
		return nil
	}
	quota := aiusage.NewService(aiusage.NewMemoryStore(), aiusage.DefaultTokens)
	return ai.NewFunFacts(chain, quota, 5*time.Second, logger)
}
