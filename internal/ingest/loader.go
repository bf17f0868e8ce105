package ingest

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"fleetsim/internal/model"
)

// Report aggregates per-line outcomes of one load. Malformed lines are
// skipped and counted with a reason; parsing never panics across this
// boundary.
type Report struct {
	File    string
	Parsed  int
	Skipped int
	Reasons []string
}

func (r *Report) skip(lineNo int, reason string) {
	r.Skipped++
	r.Reasons = append(r.Reasons, fmt.Sprintf("line %d: %s", lineNo, reason))
	log.Printf("ingest %s line %d: %s, skipped", r.File, lineNo, reason)
}

// forEachLine feeds non-empty, non-comment lines to fn.
func forEachLine(path string, fn func(lineNo int, line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fn(n, line)
	}
	return sc.Err()
}

// Locations parses `ubigeo,name,lat,lng,region,warehouseCapacity` lines.
func Locations(path string) (map[string]model.Location, Report, error) {
	out := map[string]model.Location{}
	rep := Report{File: path}
	err := forEachLine(path, func(n int, line string) {
		parts := strings.Split(line, ",")
		if len(parts) != 6 {
			rep.skip(n, "want 6 fields")
			return
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		capacity, err3 := strconv.Atoi(strings.TrimSpace(parts[5]))
		if err1 != nil || err2 != nil || err3 != nil {
			rep.skip(n, "bad numeric field")
			return
		}
		region := strings.ToUpper(strings.TrimSpace(parts[4]))
		switch region {
		case model.RegionCosta, model.RegionSierra, model.RegionSelva:
		default:
			rep.skip(n, "unknown region "+region)
			return
		}
		loc := model.Location{
			Ubigeo:            strings.TrimSpace(parts[0]),
			Name:              strings.TrimSpace(parts[1]),
			Lat:               lat,
			Lng:               lng,
			Region:            region,
			WarehouseCapacity: capacity,
		}
		out[loc.Ubigeo] = loc
		rep.Parsed++
	})
	return out, rep, err
}

// Edges parses `origin=>destination,distanceKm` lines. Travel time derives
// later from the region-pair speed table.
func Edges(path string, locations map[string]model.Location) ([]model.Edge, Report, error) {
	var out []model.Edge
	rep := Report{File: path}
	err := forEachLine(path, func(n int, line string) {
		parts := strings.Split(line, ",")
		if len(parts) != 2 {
			rep.skip(n, "want 2 fields")
			return
		}
		ends := strings.Split(parts[0], "=>")
		if len(ends) != 2 {
			rep.skip(n, "want origin=>destination")
			return
		}
		origin := strings.TrimSpace(ends[0])
		dest := strings.TrimSpace(ends[1])
		if _, ok := locations[origin]; !ok {
			rep.skip(n, "unknown origin "+origin)
			return
		}
		if _, ok := locations[dest]; !ok {
			rep.skip(n, "unknown destination "+dest)
			return
		}
		dist, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || dist <= 0 {
			rep.skip(n, "bad distance")
			return
		}
		out = append(out, model.Edge{Origin: origin, Destination: dest, DistanceKm: dist})
		rep.Parsed++
	})
	return out, rep, err
}

// Vehicles parses `code,capacity,homeUbigeo` lines.
func Vehicles(path string, locations map[string]model.Location) ([]VehicleSpec, Report, error) {
	var out []VehicleSpec
	rep := Report{File: path}
	err := forEachLine(path, func(n int, line string) {
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			rep.skip(n, "want 3 fields")
			return
		}
		capacity, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || capacity <= 0 {
			rep.skip(n, "bad capacity")
			return
		}
		home := strings.TrimSpace(parts[2])
		if _, ok := locations[home]; !ok {
			rep.skip(n, "unknown home "+home)
			return
		}
		out = append(out, VehicleSpec{
			Code:     strings.TrimSpace(parts[0]),
			Capacity: capacity,
			Home:     home,
		})
		rep.Parsed++
	})
	return out, rep, err
}

// VehicleSpec is the loaded static description of one vehicle.
type VehicleSpec struct {
	Code     string
	Capacity int
	Home     string
}

// Orders parses `dd hh mm,origin=>destination,quantity,clientId` lines.
// Day/hour/minute are relative to the base month; due time derives from the
// destination's natural region.
func Orders(path string, locations map[string]model.Location, base time.Time) ([]*model.Order, Report, error) {
	var out []*model.Order
	rep := Report{File: path}
	monthStart := time.Date(base.Year(), base.Month(), 1, 0, 0, 0, 0, time.UTC)
	err := forEachLine(path, func(n int, line string) {
		parts := strings.Split(line, ",")
		if len(parts) != 4 {
			rep.skip(n, "want 4 fields")
			return
		}
		dhm := strings.Fields(parts[0])
		if len(dhm) != 3 {
			rep.skip(n, "want `dd hh mm` timestamp")
			return
		}
		day, err1 := strconv.Atoi(dhm[0])
		hour, err2 := strconv.Atoi(dhm[1])
		minute, err3 := strconv.Atoi(dhm[2])
		if err1 != nil || err2 != nil || err3 != nil || day < 1 || hour > 23 || minute > 59 {
			rep.skip(n, "bad timestamp")
			return
		}
		ends := strings.Split(parts[1], "=>")
		if len(ends) != 2 {
			rep.skip(n, "want origin=>destination")
			return
		}
		origin := strings.TrimSpace(ends[0])
		destination := strings.TrimSpace(ends[1])
		if _, ok := locations[origin]; !ok {
			rep.skip(n, "unknown origin "+origin)
			return
		}
		destLoc, ok := locations[destination]
		if !ok {
			rep.skip(n, "unknown destination "+destination)
			return
		}
		qty, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || qty <= 0 {
			rep.skip(n, "bad quantity")
			return
		}
		orderTime := monthStart.AddDate(0, 0, day-1).
			Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
		o := &model.Order{
			ID:          fmt.Sprintf("%s-%s-%03d", origin, destination, rep.Parsed+1),
			Origin:      origin,
			Destination: destination,
			Quantity:    qty,
			OrderTime:   orderTime,
			DueTime:     orderTime.Add(model.DueOffset(destLoc.Region)),
			ClientID:    strings.TrimSpace(parts[3]),
			Status:      model.OrderRegistered,
		}
		out = append(out, o)
		rep.Parsed++
	})
	return out, rep, err
}

// Blockages parses `origin-destination;MMdd,hh:mm==MMdd,hh:mm` lines into
// half-open closure intervals anchored to the base year.
func Blockages(path string, locations map[string]model.Location, base time.Time) ([]model.Blockage, Report, error) {
	var out []model.Blockage
	rep := Report{File: path}
	err := forEachLine(path, func(n int, line string) {
		parts := strings.Split(line, ";")
		if len(parts) != 2 {
			rep.skip(n, "want edge;interval")
			return
		}
		ends := strings.Split(parts[0], "-")
		if len(ends) != 2 {
			rep.skip(n, "want origin-destination")
			return
		}
		origin := strings.TrimSpace(ends[0])
		dest := strings.TrimSpace(ends[1])
		if _, ok := locations[origin]; !ok {
			rep.skip(n, "unknown origin "+origin)
			return
		}
		if _, ok := locations[dest]; !ok {
			rep.skip(n, "unknown destination "+dest)
			return
		}
		bounds := strings.Split(parts[1], "==")
		if len(bounds) != 2 {
			rep.skip(n, "want start==end")
			return
		}
		start, err1 := parseMonthDay(bounds[0], base.Year())
		end, err2 := parseMonthDay(bounds[1], base.Year())
		if err1 != nil || err2 != nil || !end.After(start) {
			rep.skip(n, "bad interval")
			return
		}
		out = append(out, model.Blockage{Origin: origin, Destination: dest, Start: start, End: end})
		rep.Parsed++
	})
	return out, rep, err
}

// Maintenance parses `vehicleCode:yyyyMMdd,hh:mm==yyyyMMdd,hh:mm` lines.
func Maintenance(path string) ([]model.MaintenanceWindow, Report, error) {
	var out []model.MaintenanceWindow
	rep := Report{File: path}
	err := forEachLine(path, func(n int, line string) {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			rep.skip(n, "want vehicle:interval")
			return
		}
		bounds := strings.Split(parts[1], "==")
		if len(bounds) != 2 {
			rep.skip(n, "want start==end")
			return
		}
		start, err1 := time.Parse("20060102,15:04", strings.TrimSpace(bounds[0]))
		end, err2 := time.Parse("20060102,15:04", strings.TrimSpace(bounds[1]))
		if err1 != nil || err2 != nil || !end.After(start) {
			rep.skip(n, "bad interval")
			return
		}
		out = append(out, model.MaintenanceWindow{
			VehicleCode: strings.TrimSpace(parts[0]),
			Start:       start.UTC(),
			End:         end.UTC(),
		})
		rep.Parsed++
	})
	return out, rep, err
}

// parseMonthDay parses `MMdd,hh:mm` against a given year.
func parseMonthDay(s string, year int) (time.Time, error) {
	t, err := time.Parse("0102,15:04", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}
