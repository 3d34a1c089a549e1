package agents

import "math"

// Material and standards constants. Changing any of these changes certified limits.
const (
	// CTESteel is the linear expansion coefficient of spindle steel, 1/°C.
	CTESteel = 11.7e-6
	// CTECapillary is the expansion coefficient of a ceramic bonding capillary, 1/°C.
	CTECapillary = 5.5e-6

	// AmbientPrecisionC is the reference temperature of machining equipment.
	AmbientPrecisionC = 20.0
	// AmbientAssemblyC is the reference temperature of packaging equipment.
	AmbientAssemblyC = 25.0

	// ISO 14644-1: Cn = 10^N * (0.1 / D)^2.08
	ISOReferenceParticleUM = 0.1
	ISOParticleExponent    = 2.08
	ISOMonitoredParticleUM = 0.5
	ISODefaultClass        = 5
)

var isoClassMultipliers = map[int]float64{
	1: 1e1,
	2: 1e2,
	3: 1e3,
	4: 1e4,
	5: 1e5,
	6: 1e6,
	7: 1e7,
	8: 1e8,
	9: 1e9,
}

// ThermalExpansionMM is the linear growth of a part of lengthMM after a
// temperature change of deltaC.
func ThermalExpansionMM(cte, lengthMM, deltaC float64) float64 {
	return cte * lengthMM * deltaC
}

// ISOClassLimit is the maximum particle concentration per m³ for an ISO class
// at the given particle size. Unknown classes are treated as class 5.
func ISOClassLimit(class int, particleUM float64) float64 {
	mult, ok := isoClassMultipliers[class]
	if !ok {
		mult = isoClassMultipliers[ISODefaultClass]
	}
	return mult * math.Pow(ISOReferenceParticleUM/particleUM, ISOParticleExponent)
}
