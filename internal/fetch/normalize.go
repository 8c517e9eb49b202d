package fetch

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/orthanc-kz/orthanc-harvester/internal/domain"
)

// Normalization of loosely-shaped origin payloads into canonical record
// fields. Derived fields follow a fixed precedence: explicit structured field,
// price-magnitude heuristic, keyword heuristic over title/description, URL
// path convention. The first decisive signal wins.

// Price-magnitude cutoffs in tenge. Monthly rents sit far below sale prices,
// so only the unambiguous ranges are decisive.
const (
	rentalPriceCeiling = 3_000_000
	salePriceFloor     = 8_000_000
)

var (
	digitsPattern = regexp.MustCompile(`\d+`)
	areaPattern   = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*м²`)
	floorPattern  = regexp.MustCompile(`(\d+)\s*(?:из|/)\s*(\d+)\s*этаж`)
	roomsPattern  = regexp.MustCompile(`(\d+)\s*[-–]?\s*комнатн`)
	studioPattern = regexp.MustCompile(`(?i)студи\w*`)
	yearPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:год\s+постройки|построен[ао]?|сдан\s+в)\s*(\d{4})`),
		regexp.MustCompile(`\b(19\d{2}|20\d{2})\b\s*(?:г\.?|год[а]?\b)`),
	}
	complexPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)жил\.?\s*комплекс\s+([A-Za-zА-Яа-яЁё0-9"«»\-\s–—]+?)(?:[,.|\n]|$)`),
		regexp.MustCompile(`(?i)ЖК\s*["«]([^"»]+)["»]`),
		regexp.MustCompile(`(?i)ЖК\s+([A-Za-zА-Яа-яЁё0-9\-\s–—]+?)(?:[,.|\n]|$)`),
	}

	rentalKeywords = regexp.MustCompile(`(?i)аренд\w*|сдам|сдаётся|сдается|в\s+месяц|помесячно`)
	saleKeywords   = regexp.MustCompile(`(?i)продаж\w*|продам|прода[её]тся|купить`)
)

// parsePriceText strips markup and separators from a rendered price string
// ("250 000 〒" or "<span>250 000</span>") and returns the amount.
func parsePriceText(s string) int64 {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return 0
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseAreaText finds an area figure ("45.5 м²") in free text.
func parseAreaText(s string) float64 {
	m := areaPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	a, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0
	}
	return a
}

// parseFloorText extracts floor and total floors from "3/9 этаж" style text.
func parseFloorText(s string) (floor, totalFloors int) {
	m := floorPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0
	}
	floor, _ = strconv.Atoi(m[1])
	totalFloors, _ = strconv.Atoi(m[2])
	return floor, totalFloors
}

// parseConstructionYear scans free text for a plausible construction year.
func parseConstructionYear(s string) int {
	for _, p := range yearPatterns {
		if m := p.FindStringSubmatch(s); m != nil {
			year, err := strconv.Atoi(m[1])
			if err == nil && year >= 1900 && year <= 2100 {
				return year
			}
		}
	}
	return 0
}

// parseParking maps free-text parking mentions onto the handful of values the
// origin actually uses.
// \w is ASCII-only in RE2, so the adjective endings need an explicit
// Cyrillic class.
var (
	undergroundParkingPattern = regexp.MustCompile(`(?i)подземн[а-яё]*\s*парковк|паркинг`)
	surfaceParkingPattern     = regexp.MustCompile(`(?i)наземн[а-яё]*\s*парковк`)
	guardedParkingPattern     = regexp.MustCompile(`(?i)охраняем[а-яё]*\s*стоянк`)
	anyParkingPattern         = regexp.MustCompile(`(?i)парковк`)
)

func parseParking(s string) string {
	switch {
	case undergroundParkingPattern.MatchString(s):
		return "подземная парковка"
	case surfaceParkingPattern.MatchString(s):
		return "наземная парковка"
	case guardedParkingPattern.MatchString(s):
		return "охраняемая стоянка"
	case anyParkingPattern.MatchString(s):
		return "парковка"
	}
	return ""
}

// parseResidentialComplex pulls a residential-complex (ЖК) name out of
// description text.
func parseResidentialComplex(s string) string {
	for _, p := range complexPatterns {
		m := p.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		name = strings.Trim(name, `"«»`)
		name = strings.Join(strings.Fields(name), " ")
		if len(name) >= 2 && len(name) <= 80 {
			return name
		}
	}
	return ""
}

// resolveKind derives the transaction kind. explicit carries a structured
// field value when the payload had one ("" otherwise); listingURL is the
// last-resort path convention.
func resolveKind(explicit string, price int64, title, description, listingURL string) domain.TransactionKind {
	if kind, err := domain.ParseKind(explicit); err == nil && explicit != "" {
		return kind
	}

	if price > 0 {
		if price <= rentalPriceCeiling {
			return domain.KindRental
		}
		if price >= salePriceFloor {
			return domain.KindSale
		}
	}

	combined := title + "\n" + description
	rental := rentalKeywords.MatchString(combined)
	sale := saleKeywords.MatchString(combined)
	if rental != sale {
		if rental {
			return domain.KindRental
		}
		return domain.KindSale
	}

	lowered := strings.ToLower(listingURL)
	if strings.Contains(lowered, "/arenda/") {
		return domain.KindRental
	}
	return domain.KindSale
}

// resolveTypeBucket derives the unit-size bucket. rooms carries a structured
// room count when present (0 otherwise); area is the final fallback.
func resolveTypeBucket(rooms int, title, description string, area float64) domain.TypeBucket {
	if rooms > 0 {
		return bucketFromRooms(rooms)
	}

	combined := title + "\n" + description
	if studioPattern.MatchString(combined) {
		return domain.BucketStudio
	}
	if m := roomsPattern.FindStringSubmatch(strings.ToLower(combined)); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return bucketFromRooms(n)
		}
	}

	return bucketFromArea(area)
}

func bucketFromRooms(rooms int) domain.TypeBucket {
	switch {
	case rooms <= 1:
		return domain.BucketOneRoom
	case rooms == 2:
		return domain.BucketTwoRoom
	default:
		return domain.BucketThreePlus
	}
}

func bucketFromArea(area float64) domain.TypeBucket {
	switch {
	case area > 0 && area <= 30:
		return domain.BucketStudio
	case area <= 50:
		return domain.BucketOneRoom
	case area <= 80:
		return domain.BucketTwoRoom
	default:
		return domain.BucketThreePlus
	}
}
