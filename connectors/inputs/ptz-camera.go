package inputs

import (
	"fmt"

	"github.com/cognitedata/ptz-stabilizer/drivers/camera"
)

const DefaultModel = "onvif"

var driverCon = map[string]camera.DriverConstructor{
	"onvif": camera.NewOnvifCameraDriver,
}

// PtzCamera binds a configured driver to one device.
type PtzCamera struct {
	model  string
	params camera.ConnectionParams
	driver camera.Driver
}

func NewPtzCamera(model string, params camera.ConnectionParams) (*PtzCamera, error) {
	if model == "" {
		model = DefaultModel
	}
	constructor := driverCon[model]
	if constructor == nil {
		return nil, fmt.Errorf("unsupported camera model %s", model)
	}
	driver := constructor()
	if err := driver.Configure(params); err != nil {
		return nil, err
	}
	return &PtzCamera{model: model, params: params, driver: driver}, nil
}

func (cam *PtzCamera) Model() string {
	return cam.model
}

func (cam *PtzCamera) Connect() error {
	return cam.driver.Connect()
}

func (cam *PtzCamera) GetProfileToken() (string, error) {
	return cam.driver.GetProfileToken()
}

func (cam *PtzCamera) GetStatus(profileToken string) (*camera.PositionSample, error) {
	return cam.driver.GetStatus(profileToken)
}

func (cam *PtzCamera) Stop(profileToken string) error {
	return cam.driver.Stop(profileToken)
}
