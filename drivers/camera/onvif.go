package camera

import (
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/use-go/onvif"
	"github.com/use-go/onvif/media"
	onvif_ptz "github.com/use-go/onvif/ptz"
	xsd_onvif "github.com/use-go/onvif/xsd/onvif"
	dac "github.com/xinsnake/go-http-digest-auth-client"
)

const defaultRequestTimeout = 10 * time.Second

// OnvifCameraDriver talks to a device through the ONVIF media and PTZ services.
type OnvifCameraDriver struct {
	params ConnectionParams
	device *onvif.Device
}

func NewOnvifCameraDriver() Driver {
	return &OnvifCameraDriver{}
}

func (cam *OnvifCameraDriver) Configure(params ConnectionParams) error {
	if params.Address == "" {
		return fmt.Errorf("camera address is required")
	}
	if params.Port <= 0 {
		return fmt.Errorf("invalid camera port %d", params.Port)
	}
	if params.RequestTimeout <= 0 {
		params.RequestTimeout = defaultRequestTimeout
	}
	cam.params = params
	cam.device = nil
	return nil
}

// xaddr returns host:port of the device service, stripping any scheme the user may have typed.
func (cam *OnvifCameraDriver) xaddr() string {
	host := cam.params.Address
	for _, prefix := range []string{"http://", "https://"} {
		host = strings.TrimPrefix(host, prefix)
	}
	host = strings.TrimSuffix(host, "/")
	return net.JoinHostPort(host, strconv.Itoa(cam.params.Port))
}

// httpClient builds the client used for every SOAP call. The client timeout bounds each call.
func (cam *OnvifCameraDriver) httpClient() *http.Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if cam.params.IgnoreSSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := &http.Client{Timeout: cam.params.RequestTimeout, Transport: transport}
	if !cam.params.DigestAuth {
		return client
	}
	t := dac.NewTransport(cam.params.Username, cam.params.Password)
	t.HTTPClient = client
	return &http.Client{Timeout: cam.params.RequestTimeout, Transport: &t}
}

func (cam *OnvifCameraDriver) Connect() error {
	cam.device = nil
	dev, err := onvif.NewDevice(onvif.DeviceParams{
		Xaddr:      cam.xaddr(),
		Username:   cam.params.Username,
		Password:   cam.params.Password,
		HttpClient: cam.httpClient(),
	})
	if err != nil {
		return newConnectionError("connect", err)
	}
	cam.device = dev
	return nil
}

func (cam *OnvifCameraDriver) GetProfileToken() (string, error) {
	var resp profilesEnvelope
	if err := cam.call("GetProfiles", media.GetProfiles{}, &resp); err != nil {
		return "", err
	}
	return resp.firstToken()
}

func (cam *OnvifCameraDriver) GetStatus(profileToken string) (*PositionSample, error) {
	var resp statusEnvelope
	req := onvif_ptz.GetStatus{ProfileToken: xsd_onvif.ReferenceToken(profileToken)}
	if err := cam.call("GetStatus", req, &resp); err != nil {
		return nil, err
	}
	return resp.sample()
}

func (cam *OnvifCameraDriver) Stop(profileToken string) error {
	req := onvif_ptz.Stop{
		ProfileToken: xsd_onvif.ReferenceToken(profileToken),
		PanTilt:      true,
		Zoom:         true,
	}
	var resp faultEnvelope
	if err := cam.call("Stop", req, &resp); err != nil {
		return &CommandError{Op: "Stop", Err: errors.Cause(err)}
	}
	return nil
}

// call sends one SOAP request and decodes the envelope into out.
func (cam *OnvifCameraDriver) call(op string, request interface{}, out faultCarrier) error {
	if cam.device == nil {
		return newConnectionError(op, ErrNotConnected)
	}
	resp, err := cam.device.CallMethod(request)
	if err != nil {
		return newConnectionError(op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return newConnectionError(op, errors.Wrap(err, "read response"))
	}
	if cam.params.Logger != nil {
		cam.params.Logger.Tracef("%s response: %s", op, string(body))
	}
	if err := decodeEnvelope(body, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return newConnectionError(op, fmt.Errorf("device returned %s", resp.Status))
		}
		return newConnectionError(op, err)
	}
	if fault := out.fault(); fault != nil {
		return newConnectionError(op, fault)
	}
	if resp.StatusCode != http.StatusOK {
		return newConnectionError(op, fmt.Errorf("device returned %s", resp.Status))
	}
	return nil
}

func decodeEnvelope(body []byte, out interface{}) error {
	if err := xml.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "decode SOAP envelope")
	}
	return nil
}

type faultCarrier interface {
	fault() error
}

// soapFault covers both SOAP 1.2 (Reason/Text) and SOAP 1.1 (faultstring) layouts.
type soapFault struct {
	Code        string `xml:"Code>Value"`
	Subcode     string `xml:"Code>Subcode>Value"`
	Reason      string `xml:"Reason>Text"`
	FaultString string `xml:"faultstring"`
}

func (f *soapFault) Error() string {
	reason := f.Reason
	if reason == "" {
		reason = f.FaultString
	}
	if f.Subcode != "" {
		return fmt.Sprintf("SOAP fault %s (%s): %s", f.Code, f.Subcode, reason)
	}
	return fmt.Sprintf("SOAP fault %s: %s", f.Code, reason)
}

type faultEnvelope struct {
	Fault *soapFault `xml:"Body>Fault"`
}

func (e *faultEnvelope) fault() error {
	if e.Fault == nil {
		return nil
	}
	return e.Fault
}

type profilesEnvelope struct {
	faultEnvelope
	Profiles []struct {
		Token string `xml:"token,attr"`
		Name  string `xml:"Name"`
	} `xml:"Body>GetProfilesResponse>Profiles"`
}

func (e *profilesEnvelope) firstToken() (string, error) {
	if len(e.Profiles) == 0 {
		return "", newConnectionError("GetProfiles", ErrNoProfiles)
	}
	return e.Profiles[0].Token, nil
}

type vectorAttr struct {
	X float64 `xml:"x,attr"`
	Y float64 `xml:"y,attr"`
}

type statusEnvelope struct {
	faultEnvelope
	Status *struct {
		Position *struct {
			PanTilt vectorAttr `xml:"PanTilt"`
			Zoom    vectorAttr `xml:"Zoom"`
		} `xml:"Position"`
		MoveStatus struct {
			PanTilt string `xml:"PanTilt"`
			Zoom    string `xml:"Zoom"`
		} `xml:"MoveStatus"`
	} `xml:"Body>GetStatusResponse>PTZStatus"`
}

func (e *statusEnvelope) sample() (*PositionSample, error) {
	if e.Status == nil {
		return nil, newConnectionError("GetStatus", errors.New("response carries no PTZ status"))
	}
	if e.Status.Position == nil {
		return nil, newConnectionError("GetStatus", errors.New("PTZ status carries no position"))
	}
	return &PositionSample{
		Pan:           e.Status.Position.PanTilt.X,
		Tilt:          e.Status.Position.PanTilt.Y,
		Zoom:          e.Status.Position.Zoom.X,
		PanTiltStatus: ParseMoveStatus(e.Status.MoveStatus.PanTilt),
		ZoomStatus:    ParseMoveStatus(e.Status.MoveStatus.Zoom),
	}, nil
}
