package domain

// SeatBucket is per-cabin availability, capacity, and price.
type SeatBucket struct {
	Available int
	Capacity  int
	Price     Money
}

func (b SeatBucket) validate() error {
	if b.Capacity <= 0 {
		return &InvalidAmountError{Field: "capacity", Value: b.Capacity}
	}
	if b.Available < 0 || b.Available > b.Capacity {
		return &InventoryOvercapacityError{Available: b.Available, Capacity: b.Capacity}
	}
	return nil
}

// FlightInventory is the aggregate root for per-flight, per-cabin seat
// availability. Mutating methods are pure: they return the new aggregate
// state plus the events it produced, per spec §3/§4.B/§9 ("domain events on
// aggregates → return-value event list").
type FlightInventory struct {
	FlightId FlightId
	Buckets  map[CabinClass]SeatBucket
	Version  int
}

func NewFlightInventory(flightID FlightId, buckets map[CabinClass]SeatBucket, version int) (*FlightInventory, error) {
	for cabin, b := range buckets {
		if !cabin.IsValid() {
			return nil, &InventoryPersistenceError{Field: "cabin", Cause: &MalformedPayloadError{Field: "cabin", Reason: string(cabin)}}
		}
		if err := b.validate(); err != nil {
			return nil, &InventoryPersistenceError{Field: "bucket." + string(cabin), Cause: err}
		}
	}
	copied := make(map[CabinClass]SeatBucket, len(buckets))
	for k, v := range buckets {
		copied[k] = v
	}
	return &FlightInventory{FlightId: flightID, Buckets: copied, Version: version}, nil
}

func (f *FlightInventory) clone() *FlightInventory {
	buckets := make(map[CabinClass]SeatBucket, len(f.Buckets))
	for k, v := range f.Buckets {
		buckets[k] = v
	}
	return &FlightInventory{FlightId: f.FlightId, Buckets: buckets, Version: f.Version}
}

// HoldSeats decrements available seats in cabin by n, returning the new
// aggregate, the unit price charged, and the produced events.
func (f *FlightInventory) HoldSeats(cabin CabinClass, n int) (*FlightInventory, Money, []Event, error) {
	if n <= 0 {
		return nil, Money{}, nil, &InvalidAmountError{Field: "numberOfSeats", Value: n}
	}
	bucket, ok := f.Buckets[cabin]
	if !ok {
		return nil, Money{}, nil, ErrFlightNotFound
	}
	if n > bucket.Available {
		return nil, Money{}, nil, &FlightFullError{Requested: n, Available: bucket.Available}
	}

	next := f.clone()
	bucket.Available -= n
	next.Buckets[cabin] = bucket
	next.Version = f.Version + 1

	return next, bucket.Price, []Event{NewSeatsHeld(f.FlightId, cabin, n)}, nil
}

// ReleaseSeats increments available seats in cabin by n.
func (f *FlightInventory) ReleaseSeats(cabin CabinClass, n int) (*FlightInventory, []Event, error) {
	if n <= 0 {
		return nil, nil, &InvalidAmountError{Field: "numberOfSeats", Value: n}
	}
	bucket, ok := f.Buckets[cabin]
	if !ok {
		return nil, nil, ErrFlightNotFound
	}
	if bucket.Available+n > bucket.Capacity {
		return nil, nil, &InventoryOvercapacityError{
			Cabin: string(cabin), Available: bucket.Available, Capacity: bucket.Capacity, ReleaseAmount: n,
		}
	}

	next := f.clone()
	bucket.Available += n
	next.Buckets[cabin] = bucket
	next.Version = f.Version + 1

	return next, []Event{NewSeatsReleased(f.FlightId, cabin, n)}, nil
}
