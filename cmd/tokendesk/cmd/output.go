package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jmcleod/tokendesk/client"
	"github.com/jmcleod/tokendesk/tokens"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTokens(w io.Writer, list []client.Token) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tTENANT\tSTATUS\tUSAGE\tEXPIRES\tVALID")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Label(), t.TenantURL, displayStatus(t), usage(t), expires(t), validity(t))
	}
	return tw.Flush()
}

func printToken(w io.Writer, t client.Token) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", t.ID)
	fmt.Fprintf(tw, "Note:\t%s\n", t.EmailNote)
	fmt.Fprintf(tw, "Tenant URL:\t%s\n", t.TenantURL)
	fmt.Fprintf(tw, "Portal URL:\t%s\n", t.PortalURL)
	fmt.Fprintf(tw, "Status:\t%s\n", displayStatus(t))
	fmt.Fprintf(tw, "Usage:\t%s\n", usage(t))
	fmt.Fprintf(tw, "Expires:\t%s\n", expires(t))
	if bal, ok := t.CreditsBalance(); ok {
		fmt.Fprintf(tw, "Credits:\t%s\n", strconv.FormatFloat(bal, 'f', -1, 64))
	}
	fmt.Fprintf(tw, "Valid:\t%s\n", validity(t))
	fmt.Fprintf(tw, "Created:\t%s\n", t.CreatedAt)
	fmt.Fprintf(tw, "Updated:\t%s\n", t.UpdatedAt)
	return tw.Flush()
}

// displayStatus marks ban statuses this client does not recognise with "?".
func displayStatus(t client.Token) string {
	switch {
	case !t.BanStatus.Known():
		return string(t.BanStatus) + "?"
	case t.BanStatus != client.BanStatusNone:
		return string(t.BanStatus)
	case t.StatusDisplay != "":
		return t.StatusDisplay
	default:
		return "-"
	}
}

func usage(t client.Token) string {
	if t.MaxUsage == nil {
		return strconv.Itoa(t.UsageCount) + "/∞"
	}
	return fmt.Sprintf("%d/%d", t.UsageCount, *t.MaxUsage)
}

func expires(t client.Token) string {
	exp, ok := t.ExpiryDate()
	if !ok {
		return "-"
	}
	return exp.Local().Format(time.DateOnly)
}

func validity(t client.Token) string {
	switch valid, invalid := tokens.IsValid(t), tokens.IsInvalid(t); {
	case valid && invalid:
		return "limited"
	case valid:
		return "yes"
	default:
		return "no"
	}
}
