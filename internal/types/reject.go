package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownRejectReason is returned for a reject reason payload that can not be decoded.
var ErrUnknownRejectReason = errors.New("unknown reject reason")

// RejectReason explains why a transaction was rejected.
type RejectReason interface {
	// Tag is the reject reason discriminator.
	Tag() string
	// References returns the contract and module the reason points at, if any.
	References() (*ContractAddress, *ModuleReference)
}

const (
	rejectRejectedReceive         = "rejectedReceive"
	rejectRejectedInit            = "rejectedInit"
	rejectInvalidContractAddress  = "invalidContractAddress"
	rejectInvalidReceiveMethod    = "invalidReceiveMethod"
	rejectInvalidInitMethod       = "invalidInitMethod"
	rejectInvalidModuleReference  = "invalidModuleReference"
	rejectModuleHashAlreadyExists = "moduleHashAlreadyExists"
)

// RejectedReceive is a contract receive function that returned an error.
type RejectedReceive struct {
	RejectReason    int32           `json:"rejectReason"`
	ContractAddress ContractAddress `json:"contractAddress"`
	ReceiveName     string          `json:"receiveName"`
	Parameter       HexBytes        `json:"parameter"`
}

func (r *RejectedReceive) Tag() string { return rejectRejectedReceive }

func (r *RejectedReceive) References() (*ContractAddress, *ModuleReference) {
	c := r.ContractAddress
	return &c, nil
}

// RejectedInit is a contract init function that returned an error.
type RejectedInit struct {
	RejectReason int32 `json:"rejectReason"`
}

func (r *RejectedInit) Tag() string { return rejectRejectedInit }

func (r *RejectedInit) References() (*ContractAddress, *ModuleReference) { return nil, nil }

// InvalidContractAddress references a contract that does not exist.
type InvalidContractAddress struct {
	ContractAddress ContractAddress `json:"contractAddress"`
}

func (r *InvalidContractAddress) Tag() string { return rejectInvalidContractAddress }

func (r *InvalidContractAddress) References() (*ContractAddress, *ModuleReference) {
	c := r.ContractAddress
	return &c, nil
}

// InvalidReceiveMethod names a receive method the module does not export.
type InvalidReceiveMethod struct {
	ModuleRef   ModuleReference `json:"moduleRef"`
	ReceiveName string          `json:"receiveName"`
}

func (r *InvalidReceiveMethod) Tag() string { return rejectInvalidReceiveMethod }

func (r *InvalidReceiveMethod) References() (*ContractAddress, *ModuleReference) {
	m := r.ModuleRef
	return nil, &m
}

// InvalidInitMethod names an init method the module does not export.
type InvalidInitMethod struct {
	ModuleRef ModuleReference `json:"moduleRef"`
	InitName  string          `json:"initName"`
}

func (r *InvalidInitMethod) Tag() string { return rejectInvalidInitMethod }

func (r *InvalidInitMethod) References() (*ContractAddress, *ModuleReference) {
	m := r.ModuleRef
	return nil, &m
}

// InvalidModuleReference references a module that was never deployed.
type InvalidModuleReference struct {
	ModuleRef ModuleReference `json:"moduleRef"`
}

func (r *InvalidModuleReference) Tag() string { return rejectInvalidModuleReference }

func (r *InvalidModuleReference) References() (*ContractAddress, *ModuleReference) {
	m := r.ModuleRef
	return nil, &m
}

// ModuleHashAlreadyExists is a deployment of a module that is already on chain.
type ModuleHashAlreadyExists struct {
	ModuleRef ModuleReference `json:"moduleRef"`
}

func (r *ModuleHashAlreadyExists) Tag() string { return rejectModuleHashAlreadyExists }

func (r *ModuleHashAlreadyExists) References() (*ContractAddress, *ModuleReference) {
	m := r.ModuleRef
	return nil, &m
}

// OtherReject is any reject reason that does not concern contracts or modules.
type OtherReject struct {
	Type string `json:"-"`
}

func (r *OtherReject) Tag() string { return r.Type }

func (r *OtherReject) References() (*ContractAddress, *ModuleReference) { return nil, nil }

func newRejectReason(tag string) RejectReason {
	switch tag {
	case rejectRejectedReceive:
		return &RejectedReceive{}
	case rejectRejectedInit:
		return &RejectedInit{}
	case rejectInvalidContractAddress:
		return &InvalidContractAddress{}
	case rejectInvalidReceiveMethod:
		return &InvalidReceiveMethod{}
	case rejectInvalidInitMethod:
		return &InvalidInitMethod{}
	case rejectInvalidModuleReference:
		return &InvalidModuleReference{}
	case rejectModuleHashAlreadyExists:
		return &ModuleHashAlreadyExists{}
	default:
		return &OtherReject{Type: tag}
	}
}

type rejectEnvelope struct {
	Tag  string          `json:"tag"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalRejectReason encodes a reason as {"tag": ..., "data": {...}}.
func MarshalRejectReason(r RejectReason) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil reason", ErrUnknownRejectReason)
	}

	env := rejectEnvelope{Tag: r.Tag()}
	if _, other := r.(*OtherReject); !other {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}

	return json.Marshal(env)
}

// UnmarshalRejectReason decodes the form produced by MarshalRejectReason.
func UnmarshalRejectReason(data []byte) (RejectReason, error) {
	var env rejectEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownRejectReason, err)
	}
	if env.Tag == "" {
		return nil, fmt.Errorf("%w: missing tag", ErrUnknownRejectReason)
	}

	reason := newRejectReason(env.Tag)
	if _, other := reason.(*OtherReject); other || len(env.Data) == 0 {
		return reason, nil
	}

	if err := json.Unmarshal(env.Data, reason); err != nil {
		return nil, fmt.Errorf("failed to decode %s reject reason: %w", env.Tag, err)
	}

	return reason, nil
}
