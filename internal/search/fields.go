package search

// ProductFields is the declarative mapping for the product index: the raw
// catalog columns plus every LLM-derived numeric attribute.
var ProductFields = []Field{
	{Name: "id", Type: "keyword"},
	{Name: "name", Type: "text"},
	{Name: "sku", Type: "keyword"},
	{Name: "price", Type: "float"},
	{Name: "thumbnail", Type: "keyword"},
	{Name: "images", Type: "keyword"},
	{Name: "category_id", Type: "keyword"},
	{Name: "weight", Type: "float"},
	{Name: "short_description", Type: "text"},
	{Name: "description", Type: "text"},
	{Name: "salient_features", Type: "text"},
	{Name: "attributes", Type: "text"},

	{Name: "length", Type: "float"},
	{Name: "width", Type: "float"},
	{Name: "height", Type: "float"},
	{Name: "drying_washing_capacity", Type: "float"},
	{Name: "volume", Type: "float"},
	{Name: "power", Type: "float"},
	{Name: "lighting_time", Type: "float"},
	{Name: "charging_time", Type: "float"},
	{Name: "battery_capacity_mAh", Type: "float"},
	{Name: "battery_capacity_W", Type: "float"},
	{Name: "solar_panel_power", Type: "float"},
	{Name: "warranty", Type: "float"},
	{Name: "warranty_time", Type: "float"},
	{Name: "dish_diameter", Type: "float"},
	{Name: "min_operating_temperature", Type: "float"},
	{Name: "max_operating_temperature", Type: "float"},
	{Name: "water_resistance", Type: "integer"},
	{Name: "shock_resistance", Type: "integer"},
}
