package stacks

// Bounds are the autoscaling limits of a service task count.
type Bounds struct {
	Min int
	Max int
}

// ScalingBounds derives the autoscaling limits from the desired count. A
// service parked at zero still gets one task and room for a second.
func ScalingBounds(desired int) Bounds {
	if desired <= 0 {
		return Bounds{Min: 1, Max: 2}
	}
	return Bounds{Min: desired, Max: desired * 5}
}
