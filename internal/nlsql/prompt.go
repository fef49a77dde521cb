package nlsql

import (
	"fmt"
	"strings"
)

// Schema is everything the generation prompts need to know about the
// queryable index: where to query, what the columns mean, and which columns
// every statement must select.
type Schema struct {
	Table            string
	TableDescription string
	ColumnInfo       string
	Samples          string
	SelectedColumns  string
}

// ProductSchema describes the product search index for query generation.
func ProductSchema(index string) Schema {
	return Schema{
		Table:            index,
		TableDescription: "Detailed information about catalog products",
		ColumnInfo:       productColumnInfo,
		Samples:          productSamples,
		SelectedColumns:  productSelectedColumns,
	}
}

const productColumnInfo = `id (keyword): unique product identifier.
name (text): product name (used for type lookups, e.g. "pan", "solar light").
sku (keyword): internal product code (SKU).
price (float): selling price.
thumbnail (keyword): main product image URL.
weight (float): product weight in kg.
short_description (text): short product summary.
description (text): full product description.
salient_features (text): notable features.
attributes (text): remaining aggregated attributes.

length (float): product length in meters.
width (float): product width in meters.
height (float): product height in meters.

drying_washing_capacity (float): washing or drying load in kg.
volume (float): product capacity in liters.
power (float): total power draw in W.

lighting_time (float): maximum lighting time in hours.
charging_time (float): maximum full-charge time in hours.

battery_capacity_mAh (float): battery capacity in mAh.
battery_capacity_W (float): battery capacity in W.
solar_panel_power (float): solar panel power in W.

warranty (float): warranty period in months.
warranty_time (float): effective warranty period in months.

dish_diameter (float): pan or pot diameter in cm.

min_operating_temperature (float): lowest operating temperature in degrees C.
max_operating_temperature (float): highest operating temperature in degrees C.

water_resistance (integer): IPxx water resistance rating (0-99, e.g. IP67 -> 67).
shock_resistance (integer): IKxx impact resistance (1 when present, otherwise 0).`

const productSelectedColumns = `name, sku, price, thumbnail, weight, description, salient_features, attributes, length, width, height, drying_washing_capacity, volume, power, lighting_time, charging_time, battery_capacity_mAh, battery_capacity_W, solar_panel_power, warranty, dish_diameter, min_operating_temperature, max_operating_temperature, water_resistance, shock_resistance, warranty_time`

const productSamples = `# Query 1: Find the solar light with the highest power
  Returns: "SELECT ` + productSelectedColumns + ` FROM products WHERE MATCH(name, 'solar light') ORDER BY power DESC LIMIT 1"

# Query 2: Find lights with impact resistance
  Returns: "SELECT ` + productSelectedColumns + ` FROM products WHERE MATCH(name, 'light') AND shock_resistance = 1 ORDER BY price DESC LIMIT 10"

# Query 3: Find kettles with at least 1500 W of power priced under one million
  Returns: "SELECT ` + productSelectedColumns + ` FROM products WHERE MATCH(name, 'kettle') AND power >= 1500 AND price < 1000000 ORDER BY price ASC LIMIT 10"

# Query 4: Find pots holding 5 liters or more that weigh at most 3 kg
  Returns: "SELECT ` + productSelectedColumns + ` FROM products WHERE MATCH(name, 'pot') AND volume >= 5.0 AND weight <= 3.0 LIMIT 10"

# Query 5: Find outdoor lights that resist both water and impact
  Returns: "SELECT ` + productSelectedColumns + ` FROM products WHERE MATCH(name, 'outdoor light') AND water_resistance != 0 AND shock_resistance = 1 ORDER BY water_resistance DESC, price ASC LIMIT 10"`

const generationTemplate = `You are an AI assistant that writes **SQL for Elasticsearch** to retrieve data from a product catalog.

Table details:
- Table name (index): %s
- Table description: %s
- Columns (name, type, description):
%s

Question: "%s"

Sample queries:
%s

---

# Requirements

1. Analyze the question to decide which columns go into SELECT, which go into WHERE, and which need ORDER BY or LIMIT.

2. When filtering text columns, use MATCH(<column>, '<keywords>').

3. Only emit syntax Elasticsearch SQL supports. Never use dialect-specific constructs such as ILIKE, LOWER, or ::TEXT casts.

4. The statement has the shape SELECT ... FROM ... WHERE ... ORDER BY ... LIMIT ...

5. Never SELECT *. Always SELECT exactly these columns: %s.

6. If the question is unrelated to the table, return: "The question is not related to the available data."

# Important rules:
0. **No explanation and no code fences. Return exactly one SQL statement and nothing else.**
1. When the question names a product type, prefer filtering with MATCH(name, '<type>').
2. Never reference columns or tables that do not exist.
3. When the question asks for the "most" of something, LIMIT to the top 5.`

const correctionTemplate = `You are an Elasticsearch SQL expert. A previously generated statement failed or returned no rows; write a corrected statement for the question.

Table details:
- Table name (index): %s
- Table description: %s
- Columns (name, type, description):
%s

Previous SQL:
%s

Error from the previous SQL:
%s

Question: "%s"

# Important rules:
0. Most important: never SELECT *. Always SELECT exactly these columns: %s.
1. Only emit syntax Elasticsearch SQL supports; use MATCH(<column>, '<keywords>') for text filters and never ILIKE, LOWER, or ::TEXT casts.
2. Never reference columns or tables that do not exist.
3. If the previous SQL is not SQL at all, write a fresh Elasticsearch SQL statement from the question.
4. If the question is unrelated to the table, return: "The question is not related to the available data."
5. **No explanation and no code fences. Return exactly one SQL statement and nothing else.**`

func (s Schema) generationPrompt(question string) string {
	return fmt.Sprintf(generationTemplate,
		s.Table, s.TableDescription, s.ColumnInfo, question, s.Samples, s.SelectedColumns)
}

func (s Schema) correctionPrompt(question, previousSQL, execError string) string {
	return fmt.Sprintf(correctionTemplate,
		s.Table, s.TableDescription, s.ColumnInfo, previousSQL, execError, question, s.SelectedColumns)
}

// cleanStatement strips code fences and trailing semicolons the model emits
// despite instructions.
func cleanStatement(raw string) string {
	out := strings.TrimSpace(raw)
	out = strings.TrimPrefix(out, "```sql")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	out = strings.TrimSpace(out)
	return strings.TrimSuffix(out, ";")
}
