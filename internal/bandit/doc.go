// Package bandit implements the arm-selection policies used by modelrouter.
//
// Two routers are provided:
//
//   - Thompson draws from a Beta posterior per arm and picks the highest
//     draw. It supports an epsilon exploration floor and resets every arm
//     to the prior when the posterior means collapse onto one arm.
//   - LinUCB keeps a ridge-regression model per arm over a fixed-length
//     feature vector and picks the highest upper confidence bound. The
//     inverse design matrix is maintained with Sherman-Morrison rank-one
//     updates and periodically re-inverted.
//
// Both routers read their tunables from a config.Live cell on every call,
// so flags and thresholds can be changed without rebuilding the router.
// Select/Update never fail because of persistence or metrics; only
// malformed input (no arms, wrong feature length) is reported to callers.
package bandit
