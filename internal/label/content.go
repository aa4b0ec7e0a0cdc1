package label

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

// SubOrderQR is the decoded form of a sub-order label payload.
type SubOrderQR struct {
	SubOrderID           string
	ProductSizeMachineID string
	AdditiveMachineIDs   []string
}

// SubOrderQRValue joins the sub-order id, the product size machine id and the
// additive machine ids as "<id>|<machineId>|<a1,a2,...>". Empty parts are dropped.
func SubOrderQRValue(sb model.SubOrder) string {
	var parts []string
	if sb.ID != 0 {
		parts = append(parts, strconv.Itoa(sb.ID))
	}
	if sb.ProductSize.MachineID != "" {
		parts = append(parts, sb.ProductSize.MachineID)
	}
	if len(sb.Additives) > 0 {
		ids := make([]string, 0, len(sb.Additives))
		for _, a := range sb.Additives {
			ids = append(ids, a.Additive.MachineID)
		}
		parts = append(parts, strings.Join(ids, ","))
	}
	return strings.Join(parts, "|")
}

func ParseSubOrderQR(v string) SubOrderQR {
	fields := strings.SplitN(v, "|", 3)
	var out SubOrderQR
	if len(fields) > 0 {
		out.SubOrderID = fields[0]
	}
	if len(fields) > 1 {
		out.ProductSizeMachineID = fields[1]
	}
	if len(fields) > 2 && fields[2] != "" {
		out.AdditiveMachineIDs = strings.Split(fields[2], ",")
	}
	return out
}

// OrderLabelContents builds one QR label per sub-order of the order.
func OrderLabelContents(order model.Order, g model.Geometry) []model.LabelContent {
	out := make([]model.LabelContent, 0, len(order.SubOrders))
	for i := range order.SubOrders {
		out = append(out, SubOrderLabelContent(order, i, g))
	}
	return out
}

// SubOrderLabelContent builds the label for the sub-order at index i.
func SubOrderLabelContent(order model.Order, i int, g model.Geometry) model.LabelContent {
	sb := order.SubOrders[i]
	title := fmt.Sprintf("#%d %s (%d/%d)", order.DisplayNumber, order.CustomerName, i+1, len(order.SubOrders))

	return model.LabelContent{
		Family:  model.FamilyQR,
		Payload: SubOrderQRValue(sb),
		Text: []model.TextBlock{
			{Text: strings.Join(strings.Fields(title), " "), Role: model.TextRoleTitle, Priority: 0},
			{Text: productLine(sb.ProductSize), Role: model.TextRoleSubtitle, Priority: 1},
		},
		Geometry: g,
	}
}

func productLine(ps model.ProductSize) string {
	name := strings.TrimSpace(ps.ProductName + " " + ps.SizeName)

	var details []string
	if ps.Size > 0 {
		amount := strconv.FormatFloat(ps.Size, 'f', -1, 64)
		details = append(details, strings.TrimSpace(amount+" "+strings.ToLower(ps.Unit.Name)))
	}
	if ps.MachineCategory != "" {
		details = append(details, strings.ToLower(strings.ReplaceAll(ps.MachineCategory, "_", " ")))
	}
	if len(details) == 0 {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, strings.Join(details, ", "))
}
