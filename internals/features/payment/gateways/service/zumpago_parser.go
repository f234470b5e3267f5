package service

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"hnet_backend/internals/features/payment/gateways/dto"
)

var urlEncodedPattern = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)

// ZumpagoParser turns the "xml" parameter of a Zumpago notification into the
// parsed variant. The payload may arrive url-encoded and, in production,
// encrypted; decryption is the provider integration's concern and is injected
// as Decrypt. When Decrypt is nil the payload is taken as plain XML.
type ZumpagoParser struct {
	Decrypt func(payload string) (string, error)
}

type zumpagoEnvelope struct {
	IdTransaccion        string `xml:"IdTransaccion"`
	IdComercio           string `xml:"IdComercio"`
	CodigoRespuesta      string `xml:"CodigoRespuesta"`
	DescripcionRespuesta string `xml:"DescripcionRespuesta"`
	FechaProcesamiento   string `xml:"FechaProcesamiento"`
	MontoTotal           string `xml:"MontoTotal"`
}

func (p *ZumpagoParser) Parse(raw string) (dto.ZumpagoNotification, error) {
	payload := strings.TrimSpace(raw)
	if payload == "" {
		return dto.ZumpagoNotification{}, fmt.Errorf("the Zumpago notification did not include the xml parameter")
	}

	if urlEncodedPattern.MatchString(payload) {
		if decoded, err := url.QueryUnescape(payload); err == nil {
			payload = decoded
		}
	}

	if p.Decrypt != nil {
		decrypted, err := p.Decrypt(payload)
		if err != nil {
			return dto.ZumpagoNotification{}, fmt.Errorf("could not decrypt the Zumpago notification: %w", err)
		}
		payload = decrypted
	}

	var envelope zumpagoEnvelope
	if err := xml.Unmarshal([]byte(payload), &envelope); err != nil {
		return dto.ZumpagoNotification{}, fmt.Errorf("could not interpret the Zumpago notification: %w", err)
	}

	notification := dto.ZumpagoNotification{
		IdTransaccion:        strings.TrimSpace(envelope.IdTransaccion),
		IdComercio:           strings.TrimSpace(envelope.IdComercio),
		CodigoRespuesta:      strings.TrimSpace(envelope.CodigoRespuesta),
		DescripcionRespuesta: strings.TrimSpace(envelope.DescripcionRespuesta),
		FechaProcesamiento:   strings.TrimSpace(envelope.FechaProcesamiento),
		MontoTotal:           strings.TrimSpace(envelope.MontoTotal),
	}

	if notification.IdTransaccion == "" {
		return dto.ZumpagoNotification{}, fmt.Errorf("the notification does not include a valid IdTransaccion")
	}

	return notification, nil
}
