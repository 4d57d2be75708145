package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/salonkit/concierge/pkg/yclients"
)

// BookingAPI is the slice of the salon backend the booking tools need.
// *yclients.Client satisfies it.
type BookingAPI interface {
	Categories(ctx context.Context) ([]yclients.Category, error)
	Services(ctx context.Context, categoryID int64) ([]yclients.Service, error)
	Staff(ctx context.Context) ([]yclients.Master, error)
	FreeSlots(ctx context.Context, masterID int64, date string, serviceID int64) ([]yclients.Slot, error)
	CreateBooking(ctx context.Context, req yclients.BookingRequest) (*yclients.Record, error)
	FindClientByPhone(ctx context.Context, phone string) (int64, error)
	ClientRecords(ctx context.Context, clientID int64) ([]yclients.Record, error)
	CancelRecord(ctx context.Context, recordID int64) error
	RescheduleRecord(ctx context.Context, recordID int64, datetime string) (*yclients.Record, error)
}

// BookingToolset builds the salon tool set over the booking backend. The
// returned tools format plain-text results for the model; they never talk to
// the user directly.
func BookingToolset(api BookingAPI) []Tool {
	return []Tool{
		newGetCategoriesTool(api),
		newGetServicesTool(api),
		newGetMastersTool(api),
		newFindSlotsTool(api),
		newCreateBookingTool(api),
		newViewMyBookingsTool(api),
		newCancelBookingTool(api),
		newRescheduleBookingTool(api),
	}
}

func newGetCategoriesTool(api BookingAPI) Tool {
	return NewFuncTool(Definition{
		Name:        "GetCategories",
		Description: "List the salon's service categories.",
	}, func(ctx context.Context, inv Invocation) (string, error) {
		categories, err := api.Categories(ctx)
		if err != nil {
			return "", err
		}
		if len(categories) == 0 {
			return "No service categories are configured.", nil
		}
		var b strings.Builder
		b.WriteString("Service categories:\n")
		for _, c := range categories {
			fmt.Fprintf(&b, "- %s (id %d)\n", c.Title, c.ID)
		}
		return b.String(), nil
	})
}

func newGetServicesTool(api BookingAPI) Tool {
	return NewFuncTool(Definition{
		Name:        "GetServices",
		Description: "List services, optionally within one category.",
		Parameters: map[string]Parameter{
			"category_id": {Type: "integer", Description: "Category id from GetCategories; omit for all services."},
		},
	}, func(ctx context.Context, inv Invocation) (string, error) {
		services, err := api.Services(ctx, argInt64(inv.Args, "category_id"))
		if err != nil {
			return "", err
		}
		if len(services) == 0 {
			return "No services found.", nil
		}
		var b strings.Builder
		b.WriteString("Services:\n")
		for _, s := range services {
			fmt.Fprintf(&b, "- %s (id %d): %s, %d min\n", s.Title, s.ID, formatPrice(s.PriceMin, s.PriceMax), s.Duration/60)
		}
		return b.String(), nil
	})
}

func newGetMastersTool(api BookingAPI) Tool {
	return NewFuncTool(Definition{
		Name:        "GetMasters",
		Description: "List the salon's masters and their specializations.",
	}, func(ctx context.Context, inv Invocation) (string, error) {
		masters, err := api.Staff(ctx)
		if err != nil {
			return "", err
		}
		if len(masters) == 0 {
			return "No masters found.", nil
		}
		var b strings.Builder
		b.WriteString("Masters:\n")
		for _, m := range masters {
			fmt.Fprintf(&b, "- %s (id %d): %s\n", m.Name, m.ID, m.Specialization)
		}
		return b.String(), nil
	})
}

func newFindSlotsTool(api BookingAPI) Tool {
	return NewFuncTool(Definition{
		Name:        "FindSlots",
		Description: "Find free booking times for a master on a date.",
		Parameters: map[string]Parameter{
			"master_id":  {Type: "integer", Description: "Master id from GetMasters.", Required: true},
			"date":       {Type: "string", Description: "Date in YYYY-MM-DD format.", Required: true},
			"service_id": {Type: "integer", Description: "Service id to fit into the schedule."},
		},
	}, func(ctx context.Context, inv Invocation) (string, error) {
		masterID := argInt64(inv.Args, "master_id")
		date := argString(inv.Args, "date")
		if masterID == 0 || date == "" {
			return "", fmt.Errorf("master_id and date are required")
		}

		slots, err := api.FreeSlots(ctx, masterID, date, argInt64(inv.Args, "service_id"))
		if err != nil {
			return "", err
		}
		if len(slots) == 0 {
			return fmt.Sprintf("No free times on %s.", date), nil
		}
		times := make([]string, 0, len(slots))
		for _, s := range slots {
			times = append(times, s.Time)
		}
		return fmt.Sprintf("Free times on %s: %s", date, strings.Join(times, ", ")), nil
	})
}

func newCreateBookingTool(api BookingAPI) Tool {
	return NewFuncTool(Definition{
		Name:        "CreateBooking",
		Description: "Book a service for the client. Confirm service, master, date and time with the client first.",
		Parameters: map[string]Parameter{
			"phone":      {Type: "string", Description: "Client phone number.", Required: true},
			"full_name":  {Type: "string", Description: "Client name.", Required: true},
			"service_id": {Type: "integer", Description: "Service id.", Required: true},
			"master_id":  {Type: "integer", Description: "Master id.", Required: true},
			"datetime":   {Type: "string", Description: "Start time, ISO 8601 (e.g. 2026-09-01T14:30:00+03:00).", Required: true},
		},
	}, func(ctx context.Context, inv Invocation) (string, error) {
		record, err := api.CreateBooking(ctx, yclients.BookingRequest{
			PhoneNumber: argString(inv.Args, "phone"),
			FullName:    argString(inv.Args, "full_name"),
			ServiceID:   argInt64(inv.Args, "service_id"),
			StaffID:     argInt64(inv.Args, "master_id"),
			Datetime:    argString(inv.Args, "datetime"),
			Comment:     "booked via concierge bot",
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Booking confirmed, record id %d for %s.", record.ID, record.Datetime), nil
	})
}

func newViewMyBookingsTool(api BookingAPI) Tool {
	return NewFuncTool(Definition{
		Name:        "ViewMyBookings",
		Description: "Show the client's upcoming bookings by phone number.",
		Parameters: map[string]Parameter{
			"phone": {Type: "string", Description: "Client phone number.", Required: true},
		},
	}, func(ctx context.Context, inv Invocation) (string, error) {
		records, err := clientRecordsByPhone(ctx, api, argString(inv.Args, "phone"))
		if err != nil {
			return "", err
		}
		if len(records) == 0 {
			return "No bookings found for this phone number.", nil
		}
		var b strings.Builder
		b.WriteString("Bookings:\n")
		for _, r := range records {
			titles := make([]string, 0, len(r.Services))
			for _, s := range r.Services {
				titles = append(titles, s.Title)
			}
			fmt.Fprintf(&b, "- record %d: %s at %s with %s\n", r.ID, strings.Join(titles, ", "), r.Datetime, r.Staff.Name)
		}
		return b.String(), nil
	})
}

func newCancelBookingTool(api BookingAPI) Tool {
	return NewFuncTool(Definition{
		Name:        "CancelBooking",
		Description: "Cancel a booking by record id. Ask the client to confirm before cancelling.",
		Parameters: map[string]Parameter{
			"record_id": {Type: "integer", Description: "Record id from ViewMyBookings.", Required: true},
		},
	}, func(ctx context.Context, inv Invocation) (string, error) {
		recordID := argInt64(inv.Args, "record_id")
		if recordID == 0 {
			return "", fmt.Errorf("record_id is required")
		}
		if err := api.CancelRecord(ctx, recordID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Booking %d cancelled.", recordID), nil
	})
}

func newRescheduleBookingTool(api BookingAPI) Tool {
	return NewFuncTool(Definition{
		Name:        "RescheduleBooking",
		Description: "Move an existing booking to a new time. Check FindSlots first.",
		Parameters: map[string]Parameter{
			"record_id": {Type: "integer", Description: "Record id from ViewMyBookings.", Required: true},
			"datetime":  {Type: "string", Description: "New start time, ISO 8601.", Required: true},
		},
	}, func(ctx context.Context, inv Invocation) (string, error) {
		recordID := argInt64(inv.Args, "record_id")
		datetime := argString(inv.Args, "datetime")
		if recordID == 0 || datetime == "" {
			return "", fmt.Errorf("record_id and datetime are required")
		}
		record, err := api.RescheduleRecord(ctx, recordID, datetime)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Booking %d moved to %s.", record.ID, record.Datetime), nil
	})
}

func clientRecordsByPhone(ctx context.Context, api BookingAPI, phone string) ([]yclients.Record, error) {
	if phone == "" {
		return nil, fmt.Errorf("phone is required")
	}
	clientID, err := api.FindClientByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if clientID == 0 {
		return nil, nil
	}
	return api.ClientRecords(ctx, clientID)
}

func formatPrice(min, max int64) string {
	if min == max || max == 0 {
		return fmt.Sprintf("%d rub", min)
	}
	return fmt.Sprintf("%d-%d rub", min, max)
}

// argString reads a string argument, tolerating absence.
func argString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// argInt64 reads an integer argument. JSON decoding yields float64 for
// numbers; models occasionally send numbers as strings, so both are accepted.
func argInt64(args map[string]any, key string) int64 {
	if args == nil {
		return 0
	}
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return 0
}
