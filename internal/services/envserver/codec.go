package envserver

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LeonardoBeccarini/plant_env/internal/model/entities"
	plantsim "github.com/LeonardoBeccarini/plant_env/internal/plant-simulator"
)

var ErrMalformed = errors.New("malformed message")

func numberList(v []float64) *structpb.ListValue {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(v))}
	for _, x := range v {
		out.Values = append(out.Values, structpb.NewNumberValue(x))
	}
	return out
}

func numbers(l *structpb.ListValue) ([]float64, bool) {
	out := make([]float64, 0, len(l.GetValues()))
	for _, v := range l.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, false
		}
		out = append(out, n.NumberValue)
	}
	return out, true
}

// maxSeed is the largest seed a JSON-style number carries exactly.
const maxSeed = 1 << 53

// EncodeResetRequest builds a Reset request. A negative seed is left out, which
// asks the server to keep its current random source.
func EncodeResetRequest(seed int64) *structpb.Struct {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if seed >= 0 {
		req.Fields["seed"] = structpb.NewNumberValue(float64(seed))
	}
	return req
}

// DecodeResetRequest returns the requested seed and whether one was sent.
// An absent or null seed is not an error.
func DecodeResetRequest(s *structpb.Struct) (uint64, bool, error) {
	v, ok := s.GetFields()["seed"]
	if !ok {
		return 0, false, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return 0, false, nil
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f < 0 || f > maxSeed || f != math.Trunc(f) {
			return 0, false, fmt.Errorf("%w: seed must be an integer in [0, 2^53]", ErrMalformed)
		}
		return uint64(f), true, nil
	default:
		return 0, false, fmt.Errorf("%w: seed must be a number", ErrMalformed)
	}
}

// EncodeAction writes an action as a list of three 0/1 numbers.
func EncodeAction(a entities.Action) *structpb.ListValue {
	return numberList(a.Vector())
}

// DecodeActionVector extracts the raw vector; shape checks are left to the action space.
func DecodeActionVector(l *structpb.ListValue) ([]float64, error) {
	v, ok := numbers(l)
	if !ok {
		return nil, fmt.Errorf("%w: action components must be numbers", plantsim.ErrInvalidAction)
	}
	return v, nil
}

// EncodeObservation writes the six observation fields in wire order.
func EncodeObservation(s entities.SensorState) *structpb.ListValue {
	return numberList(s.Vector())
}

func DecodeObservation(l *structpb.ListValue) (entities.SensorState, error) {
	v, ok := numbers(l)
	if !ok || len(v) != entities.ObservationSize {
		return entities.SensorState{}, fmt.Errorf("%w: observation needs %d numbers", ErrMalformed, entities.ObservationSize)
	}
	return entities.SensorState{
		SoilHumidity:   v[0],
		Light:          v[1],
		Temperature:    v[2],
		AirHumidity:    v[3],
		WaterLevel:     v[4],
		ElapsedMinutes: int(v[5]),
	}, nil
}

// EncodeStepResult packs a step as {observation, reward, done, info}.
func EncodeStepResult(res plantsim.StepResult) (*structpb.Struct, error) {
	info, err := structpb.NewStruct(res.Info)
	if err != nil {
		return nil, fmt.Errorf("encode info: %w", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"observation": structpb.NewListValue(EncodeObservation(res.State)),
		"reward":      structpb.NewNumberValue(res.Reward),
		"done":        structpb.NewBoolValue(res.Done),
		"info":        structpb.NewStructValue(info),
	}}, nil
}

func DecodeStepResult(s *structpb.Struct) (plantsim.StepResult, error) {
	f := s.GetFields()
	obs, err := DecodeObservation(f["observation"].GetListValue())
	if err != nil {
		return plantsim.StepResult{}, err
	}
	reward, ok := f["reward"].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return plantsim.StepResult{}, fmt.Errorf("%w: reward missing", ErrMalformed)
	}
	info := map[string]any{}
	if st := f["info"].GetStructValue(); st != nil {
		info = st.AsMap()
	}
	return plantsim.StepResult{
		State:  obs,
		Reward: reward.NumberValue,
		Done:   f["done"].GetBoolValue(),
		Info:   info,
	}, nil
}
