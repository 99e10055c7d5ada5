package onvif

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/use-go/onvif/gosoap"
)

const (
	nsAddr   = "http://www.w3.org/2005/08/addressing"
	nsEvents = "http://www.onvif.org/ver10/events/wsdl"
	nsNotify = "http://docs.oasis-open.org/wsn/b-2"

	actionCreatePullPoint = "http://www.onvif.org/ver10/events/wsdl/EventPortType/CreatePullPointSubscriptionRequest"
	actionPullMessages    = "http://www.onvif.org/ver10/events/wsdl/PullPointSubscription/PullMessagesRequest"
	actionUnsubscribe     = "http://docs.oasis-open.org/wsn/bw-2/SubscriptionManager/UnsubscribeRequest"
)

// envelope wraps content in a SOAP 1.2 envelope carrying the WS-Addressing
// headers pull points dispatch on and, when a username is set, a
// UsernameToken with a password digest.
func envelope(action, to, username, password, content string) ([]byte, error) {
	msg := gosoap.NewEmptySOAP()
	msg.AddRootNamespaces(map[string]string{
		"wsa":  nsAddr,
		"tev":  nsEvents,
		"wsnt": nsNotify,
	})
	msg.AddStringBodyContent(content)
	if username != "" {
		msg.AddWSSecurity(username, password)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(msg.String()); err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	header := doc.Root().SelectElement("Header")
	if header == nil {
		return nil, fmt.Errorf("encoding envelope: missing header")
	}
	header.CreateElement("wsa:Action").SetText(action)
	header.CreateElement("wsa:To").SetText(to)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return out, nil
}

func createPullPointBody() string {
	return `<tev:CreatePullPointSubscription xmlns:tev="` + nsEvents + `"/>`
}

func pullMessagesBody(timeout time.Duration, limit int) string {
	return fmt.Sprintf(`<tev:PullMessages xmlns:tev="%s"><tev:Timeout>%s</tev:Timeout><tev:MessageLimit>%d</tev:MessageLimit></tev:PullMessages>`,
		nsEvents, xsDuration(timeout), limit)
}

func unsubscribeBody() string {
	return `<wsnt:Unsubscribe xmlns:wsnt="` + nsNotify + `"/>`
}

// xsDuration formats d as a whole-second xs:duration, e.g. PT5S.
func xsDuration(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("PT%dS", secs)
}

type createPullPointResponse struct {
	Address string `xml:"Body>CreatePullPointSubscriptionResponse>SubscriptionReference>Address"`
}

type pullMessagesResponse struct {
	Messages []notificationMessage `xml:"Body>PullMessagesResponse>NotificationMessage"`
}

type notificationMessage struct {
	Topic string     `xml:"Topic"`
	Src   []dataItem `xml:"Message>Message>Source>SimpleItem"`
}

type dataItem struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:"Value,attr"`
}

type faultResponse struct {
	Code   string `xml:"Body>Fault>Code>Value"`
	Reason string `xml:"Body>Fault>Reason>Text"`
}

func (m notificationMessage) source() string {
	parts := make([]string, 0, len(m.Src))
	for _, item := range m.Src {
		parts = append(parts, item.Name+"="+item.Value)
	}
	return strings.Join(parts, ",")
}
