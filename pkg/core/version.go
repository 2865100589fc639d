// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

// Version is reported by the public and admin surfaces.
const Version = "1.0.0"
