package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/pkg/auth"
	apperrors "github.com/jwalitptl/ehr-chainview/pkg/errors"
	"github.com/jwalitptl/ehr-chainview/pkg/logger"
)

var (
	ErrNoNonce      = errors.New("no pending sign-in for this address")
	ErrRoleDenied   = errors.New("wallet does not hold the requested role")
	defaultNonceTTL = 5 * time.Minute
)

const signInMessage = "Sign in to EHR Chainview\nAddress: %s\nNonce: %s"

type Servicer interface {
	Nonce(ctx context.Context, address common.Address) (*model.NonceResponse, error)
	Login(ctx context.Context, req model.LoginRequest) (*model.TokenResponse, error)
}

type Service struct {
	jwtSvc  auth.JWTService
	readers contract.Readers
	admins  map[common.Address]struct{}
	nonces  *cache.Cache
	// nonceMu makes reading and consuming a nonce one step.
	nonceMu sync.Mutex
	logger  *logger.Logger
}

type Config struct {
	AdminWallets []common.Address
	NonceTTL     time.Duration
}

func NewService(jwtSvc auth.JWTService, readers contract.Readers, cfg Config, log *logger.Logger) *Service {
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = defaultNonceTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	admins := make(map[common.Address]struct{}, len(cfg.AdminWallets))
	for _, a := range cfg.AdminWallets {
		admins[a] = struct{}{}
	}
	return &Service{
		jwtSvc:  jwtSvc,
		readers: readers,
		admins:  admins,
		nonces:  cache.New(cfg.NonceTTL, cfg.NonceTTL),
		logger:  log,
	}
}

// Nonce starts a sign-in. The returned message is what the wallet signs.
func (s *Service) Nonce(ctx context.Context, address common.Address) (*model.NonceResponse, error) {
	nonce := uuid.NewString()
	msg := fmt.Sprintf(signInMessage, address.Hex(), nonce)
	s.nonces.SetDefault(nonceKey(address), msg)
	return &model.NonceResponse{Nonce: nonce, Message: msg}, nil
}

func (s *Service) consumeNonce(address common.Address) (string, bool) {
	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()
	key := nonceKey(address)
	v, ok := s.nonces.Get(key)
	if !ok {
		return "", false
	}
	s.nonces.Delete(key)
	return v.(string), true
}

// Login checks the signature over the pending nonce message and that the
// wallet holds the requested role, then issues a session token. A nonce
// is usable once.
func (s *Service) Login(ctx context.Context, req model.LoginRequest) (*model.TokenResponse, error) {
	if !common.IsHexAddress(req.Address) {
		return nil, apperrors.BadRequest("invalid address", nil)
	}
	address := common.HexToAddress(req.Address)
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}

	msg, ok := s.consumeNonce(address)
	if !ok {
		return nil, apperrors.Unauthorized(ErrNoNonce)
	}

	if err := auth.VerifyPersonalSign(address, msg, req.Signature); err != nil {
		s.logger.Warn("Rejected sign-in signature", "address", address.Hex())
		return nil, apperrors.Unauthorized(err)
	}
	if err := s.checkRole(ctx, address, role); err != nil {
		return nil, err
	}

	token, expires, err := s.jwtSvc.GenerateToken(address, role)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	s.logger.Info("Wallet signed in", "address", address.Hex(), "role", string(role))
	return &model.TokenResponse{
		AccessToken: token,
		ExpiresIn:   int64(time.Until(expires).Seconds()),
		Role:        role,
		Address:     address.Hex(),
	}, nil
}

func (s *Service) checkRole(ctx context.Context, address common.Address, role model.Role) error {
	var (
		ok  bool
		err error
	)
	switch role {
	case model.RoleAdmin:
		_, ok = s.admins[address]
	case model.RoleHospital:
		ok, err = s.readers.Hospital.IsRegistered(ctx, address)
	case model.RoleDoctor:
		ok, err = s.readers.Doctor.HasRole(ctx, model.DoctorRole, address)
	case model.RoleInsurance, model.RoleResearch:
		var p model.AdminProfile
		p, err = s.readers.Admin.Admin(ctx, model.AdminCategory(role), address)
		ok = p.Active
	case model.RolePatient:
		ok = true
	}
	if err != nil {
		return apperrors.Unavailable(fmt.Errorf("check %s role: %w", role, err))
	}
	if !ok {
		return apperrors.Forbidden(ErrRoleDenied.Error())
	}
	return nil
}

func nonceKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}
