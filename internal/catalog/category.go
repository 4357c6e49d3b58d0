// Package catalog defines the product categories a listing can belong to
// and the specification form each category asks the seller to fill in.
// Kind is a closed enum dispatched with an exhaustive switch, so adding a
// category without its form is a compile-time hole, not a silent nil from
// a lookup table.
package catalog

import "fmt"

// Kind identifies a product category.
type Kind int

const (
	KindProcessor Kind = iota
	KindMotherboard
	KindGraphicsCard
	KindMemory
	KindStorage
	KindPowerSupply
	KindCase
	KindCooler
	KindMonitor
	KindKeyboard
	KindMouse
	KindHeadset
	KindLaptop
	KindAccessory
)

// Kinds lists every category in display order.
func Kinds() []Kind {
	return []Kind{
		KindProcessor, KindMotherboard, KindGraphicsCard, KindMemory,
		KindStorage, KindPowerSupply, KindCase, KindCooler,
		KindMonitor, KindKeyboard, KindMouse, KindHeadset,
		KindLaptop, KindAccessory,
	}
}

func (k Kind) String() string {
	switch k {
	case KindProcessor:
		return "processor"
	case KindMotherboard:
		return "motherboard"
	case KindGraphicsCard:
		return "graphics_card"
	case KindMemory:
		return "memory"
	case KindStorage:
		return "storage"
	case KindPowerSupply:
		return "power_supply"
	case KindCase:
		return "case"
	case KindCooler:
		return "cooler"
	case KindMonitor:
		return "monitor"
	case KindKeyboard:
		return "keyboard"
	case KindMouse:
		return "mouse"
	case KindHeadset:
		return "headset"
	case KindLaptop:
		return "laptop"
	case KindAccessory:
		return "accessory"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a stored category slug back to its Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds() {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// FieldType tells the form renderer which input widget to use.
type FieldType int

const (
	FieldText FieldType = iota
	FieldNumber
	FieldSelect
)

// Field is one input of a category's specification form.
type Field struct {
	Name     string
	Label    string
	Type     FieldType
	Unit     string
	Options  []string
	Required bool
}

// Form is the specification template for one category.
type Form struct {
	Kind   Kind
	Fields []Field
}

// FormFor returns the specification form of a category. The switch covers
// every Kind; an unknown value is a programming error.
func FormFor(k Kind) Form {
	switch k {
	case KindProcessor:
		return form(k,
			text("brand", "Brand", true),
			text("model", "Model", true),
			number("cores", "Cores", "", true),
			number("base_clock", "Base clock", "GHz", true),
			text("socket", "Socket", true),
		)
	case KindMotherboard:
		return form(k,
			text("brand", "Brand", true),
			text("chipset", "Chipset", true),
			text("socket", "Socket", true),
			choice("form_factor", "Form factor", []string{"ATX", "mATX", "Mini-ITX", "E-ATX"}, true),
			number("ram_slots", "RAM slots", "", false),
		)
	case KindGraphicsCard:
		return form(k,
			text("brand", "Brand", true),
			text("chipset", "Chipset", true),
			number("vram", "VRAM", "GB", true),
			number("length", "Card length", "mm", false),
		)
	case KindMemory:
		return form(k,
			text("brand", "Brand", true),
			choice("type", "Type", []string{"DDR3", "DDR4", "DDR5"}, true),
			number("capacity", "Capacity", "GB", true),
			number("speed", "Speed", "MHz", true),
		)
	case KindStorage:
		return form(k,
			text("brand", "Brand", true),
			choice("type", "Type", []string{"NVMe SSD", "SATA SSD", "HDD"}, true),
			number("capacity", "Capacity", "GB", true),
		)
	case KindPowerSupply:
		return form(k,
			text("brand", "Brand", true),
			number("wattage", "Wattage", "W", true),
			choice("rating", "Efficiency rating", []string{"80+ Bronze", "80+ Silver", "80+ Gold", "80+ Platinum", "80+ Titanium"}, false),
			choice("modularity", "Modularity", []string{"Non-modular", "Semi-modular", "Fully modular"}, false),
		)
	case KindCase:
		return form(k,
			text("brand", "Brand", true),
			choice("form_factor", "Form factor", []string{"Full tower", "Mid tower", "Mini tower", "SFF"}, true),
			text("color", "Color", false),
		)
	case KindCooler:
		return form(k,
			text("brand", "Brand", true),
			choice("type", "Type", []string{"Air", "AIO liquid"}, true),
			text("socket_support", "Socket support", false),
		)
	case KindMonitor:
		return form(k,
			text("brand", "Brand", true),
			number("size", "Size", "inch", true),
			text("resolution", "Resolution", true),
			number("refresh_rate", "Refresh rate", "Hz", false),
			choice("panel", "Panel", []string{"IPS", "VA", "TN", "OLED"}, false),
		)
	case KindKeyboard:
		return form(k,
			text("brand", "Brand", true),
			choice("switch_type", "Switch type", []string{"Mechanical", "Membrane", "Optical"}, false),
			choice("layout", "Layout", []string{"Full-size", "TKL", "60%", "75%"}, false),
		)
	case KindMouse:
		return form(k,
			text("brand", "Brand", true),
			number("dpi", "Max DPI", "", false),
			choice("connection", "Connection", []string{"Wired", "Wireless"}, false),
		)
	case KindHeadset:
		return form(k,
			text("brand", "Brand", true),
			choice("connection", "Connection", []string{"Wired", "Wireless"}, false),
			choice("microphone", "Microphone", []string{"Built-in", "Detachable", "None"}, false),
		)
	case KindLaptop:
		return form(k,
			text("brand", "Brand", true),
			text("model", "Model", true),
			text("cpu", "CPU", true),
			number("ram", "RAM", "GB", true),
			number("storage", "Storage", "GB", true),
			number("screen_size", "Screen size", "inch", false),
		)
	case KindAccessory:
		return form(k,
			text("name", "Name", true),
			text("description", "Description", false),
		)
	}
	panic(fmt.Sprintf("catalog: no form for %v", k))
}

func form(k Kind, fields ...Field) Form {
	return Form{Kind: k, Fields: fields}
}

func text(name, label string, required bool) Field {
	return Field{Name: name, Label: label, Type: FieldText, Required: required}
}

func number(name, label, unit string, required bool) Field {
	return Field{Name: name, Label: label, Type: FieldNumber, Unit: unit, Required: required}
}

func choice(name, label string, options []string, required bool) Field {
	return Field{Name: name, Label: label, Type: FieldSelect, Options: options, Required: required}
}
