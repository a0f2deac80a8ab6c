package api

import (
	"math"
	"math/rand/v2"

	"github.com/gin-gonic/gin"

	"agrox/internal/model"
	"agrox/internal/utils"
)

// SensorReading is a simulated field sensor sample. No hardware is attached;
// the values only drive the dashboard.
type SensorReading struct {
	SensorID     string  `json:"sensor_id"`
	Temperature  float64 `json:"temperature"`   // °C
	Humidity     float64 `json:"humidity"`      // %
	SoilMoisture float64 `json:"soil_moisture"` // %
	SoilPH       float64 `json:"soil_ph"`
	LightLux     float64 `json:"light_intensity"`
	Mock         bool    `json:"mock"`
	Timestamp    string  `json:"timestamp"`
}

func between(lo, hi float64) float64 {
	return math.Round((lo+rand.Float64()*(hi-lo))*10) / 10
}

func mockReading(ts string) SensorReading {
	return SensorReading{
		SensorID:     "field-01",
		Temperature:  between(18, 38),
		Humidity:     between(30, 90),
		SoilMoisture: between(15, 60),
		SoilPH:       between(5.5, 7.5),
		LightLux:     between(2000, 60000),
		Mock:         true,
		Timestamp:    ts,
	}
}

// sensorData returns a simulated reading
func (s *Server) sensorData(c *gin.Context) {
	utils.Success(c, mockReading(s.now().Format(model.TimestampLayout)))
}
