package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/FLC-QU-hep/synthetic-data-generator/internal/dataset"
	"github.com/FLC-QU-hep/synthetic-data-generator/internal/shower"
)

// #region main
func main() {
	imagesPath := flag.String("images", "", "raw little-endian float32 images, one shower after another")
	energiesPath := flag.String("energies", "", "text file with one incident energy per shower")
	energy := flag.Float64("energy", 0, "constant incident energy when --energies is not given")
	layers := flag.Int("layers", 48, "layers per shower")
	x := flag.Int("x", 50, "cells along X")
	y := flag.Int("y", 50, "cells along Y")
	flag.Parse()

	if *imagesPath == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest --images showers.f32 [--energies energies.txt | --energy E] [--layers L --x X --y Y]")
		os.Exit(2)
	}
	dbPath := envOr("SHOWER_DB", "showers.db")

	store, err := dataset.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open shower store: %v", err)
	}
	defer store.Close()

	var energies []float64
	if *energiesPath != "" {
		f, err := os.Open(*energiesPath)
		if err != nil {
			log.Fatalf("open energies: %v", err)
		}
		energies, err = readEnergies(f)
		f.Close()
		if err != nil {
			log.Fatalf("read energies: %v", err)
		}
	}

	f, err := os.Open(*imagesPath)
	if err != nil {
		log.Fatalf("open images: %v", err)
	}
	defer f.Close()

	geom := shower.Geometry{Layers: *layers, X: *x, Y: *y}
	n, err := ingest(store, bufio.NewReader(f), geom, energies, *energy)
	if err != nil {
		log.Fatalf("ingest: %v", err)
	}
	total, _ := store.Len()
	log.Printf("ingested %d showers into %s (%d total)", n, dbPath, total)
}
// #endregion main

// #region ingest
// ingest appends every complete shower in r. The i-th shower takes
// energies[i], or fallback when energies is empty.
func ingest(store *dataset.Store, r io.Reader, geom shower.Geometry, energies []float64, fallback float64) (int, error) {
	buf := make([]byte, geom.Cells()*4)
	image := make([]float64, geom.Cells())
	n := 0
	for {
		_, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return n, fmt.Errorf("shower %d is truncated", n)
		}
		if err != nil {
			return n, fmt.Errorf("read shower %d: %w", n, err)
		}
		for i := range image {
			image[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])))
		}

		e := fallback
		if len(energies) > 0 {
			if n >= len(energies) {
				return n, fmt.Errorf("shower %d has no energy (%d given)", n, len(energies))
			}
			e = energies[n]
		}
		if _, err := store.Append(e, geom, image); err != nil {
			return n, err
		}
		n++
	}
	if len(energies) > 0 && n != len(energies) {
		log.Printf("warning: %d energies for %d showers", len(energies), n)
	}
	return n, nil
}

func readEnergies(r io.Reader) ([]float64, error) {
	var out []float64
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, v)
	}
	return out, sc.Err()
}
// #endregion ingest

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
// #endregion helpers
