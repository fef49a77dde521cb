package enrich

import "fmt"

// Sentinel is the literal completion meaning "nothing derivable". It is
// distinct from an empty object.
const Sentinel = "None"

// DerivedKeys enumerates every attribute the capability may emit. Responses
// carrying any other key are ignored key-by-key so the enrichment can never
// clobber record metadata.
var DerivedKeys = map[string]bool{
	"length":                    true,
	"width":                     true,
	"height":                    true,
	"drying_washing_capacity":   true,
	"volume":                    true,
	"power":                     true,
	"lighting_time":             true,
	"charging_time":             true,
	"battery_capacity_mAh":      true,
	"battery_capacity_W":        true,
	"solar_panel_power":         true,
	"warranty":                  true,
	"dish_diameter":             true,
	"min_operating_temperature": true,
	"max_operating_temperature": true,
	"water_resistance":          true,
	"shock_resistance":          true,
}

const promptTemplate = `You are a data analyst extracting normalized numeric attributes from product data.

Product JSON is between the <context> tags:
<context>
%s
</context>

Return a flat JSON object restricted to these keys, omitting any key the
product data gives no information for:

1. "length": product length, converted to meters ("50cm" -> 0.5).
2. "width": product width in meters.
3. "height": product height in meters.
4. "drying_washing_capacity": washer/dryer load capacity in kg ("8.5kg" -> 8.5).
5. "volume": capacity in liters ("600ml" -> 0.6).
6. "power": total power in W ("2kW" -> 2000).
7. "lighting_time": lighting duration in hours; for a range take the largest ("38-40h" -> 40).
8. "charging_time": charging time in hours; for a range take the largest.
9. "battery_capacity_mAh": battery capacity in mAh when stated in mAh.
10. "battery_capacity_W": battery capacity in W when stated in W or kW.
11. "solar_panel_power": solar panel power in W.
12. "warranty": warranty period in months ("2 years" -> 24); a bare number means years.
13. "dish_diameter": pan/pot diameter in cm ("260mm" -> 26).
14. "min_operating_temperature": lowest operating temperature in Celsius.
15. "max_operating_temperature": highest operating temperature in Celsius.
16. "water_resistance": the two digits of an IPxx rating ("IP67" -> 67).
17. "shock_resistance": 1 when an IKxx impact rating is mentioned, else 0.

Rules:
- Output only the JSON object, no commentary and no code fences.
- If no attribute can be derived, return the literal string "None".
- Values must be bare numbers without units.
- Never invent data that is not present in the product JSON.
- For solar equipment, length/width/height describe the solar panel.`

func buildPrompt(productJSON []byte) string {
	return fmt.Sprintf(promptTemplate, productJSON)
}
