package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const orderNumberDayFormat = "20060102"

// FormatOrderNumber renders a per-day sequential order number, e.g.
// ORD-20260831-007. The sequence is padded to three digits and widens
// naturally beyond 999.
func FormatOrderNumber(prefix string, day time.Time, sequence int64) string {
	return fmt.Sprintf("%s-%03d", OrderNumberDayPrefix(prefix, day), sequence)
}

// OrderNumberDayPrefix returns the shared prefix of every order number issued
// on the given day, without the trailing separator, e.g. ORD-20260831.
func OrderNumberDayPrefix(prefix string, day time.Time) string {
	return fmt.Sprintf("%s-%s", prefix, day.UTC().Format(orderNumberDayFormat))
}

// SequenceFromNumber extracts the numeric sequence from an order number.
// Returns 0 when the number does not carry a parsable suffix.
func SequenceFromNumber(orderNumber string) int64 {
	idx := strings.LastIndex(orderNumber, "-")
	if idx < 0 || idx == len(orderNumber)-1 {
		return 0
	}
	seq, err := strconv.ParseInt(orderNumber[idx+1:], 10, 64)
	if err != nil || seq < 0 {
		return 0
	}
	return seq
}
