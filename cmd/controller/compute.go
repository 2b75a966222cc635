package main

import (
	"context"

	"github.com/cleavelab/ncstestbed/pkg/ncstestbed/codec"
)

// pdCompute is a minimal proportional-derivative stabilizer for the
// invpendulum example: it reads the pole angle and angular velocity from
// the sensor sample and returns a horizontal cart force meant to drive the
// angle back to zero (the upward vertical).
type pdCompute struct {
	kp, kd float64
}

// SubmitRequest computes and delivers the actuation synchronously: this
// Compute implementation never defers work past the current call.
func (c *pdCompute) SubmitRequest(input codec.PPM, callback func(codec.PPM)) {
	theta := input["theta"]
	thetaDot := input["theta_dot"]
	u := -c.kp*theta - c.kd*thetaDot
	callback(codec.PPM{"u": u})
}

// ProcessLoop has no background work to pump: every request is answered
// synchronously in SubmitRequest.
func (c *pdCompute) ProcessLoop(ctx context.Context) {}
