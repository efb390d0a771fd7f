package enums

// OccupancyStatus marks whether a stay is ongoing.
type OccupancyStatus string

const (
	OccupancyStatusActive OccupancyStatus = "active"
	OccupancyStatusClosed OccupancyStatus = "closed"
)

// IsValid reports whether the value is a known OccupancyStatus.
func (s OccupancyStatus) IsValid() bool {
	return s == OccupancyStatusActive || s == OccupancyStatusClosed
}
