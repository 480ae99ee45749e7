package sqlinline

const QEnsureProfile = `--sql cb311e81-f60c-45bc-b581-0ae603e6a306
insert into profiles (id, email, plan, quota_daily, quota_used, quota_reset_at, created_at, updated_at)
values ($1::uuid, $2::text, 'free', 5, 0, current_date, now(), now())
on conflict (id) do update set
    email = coalesce(nullif(excluded.email, ''), profiles.email)
returning id, email, full_name, avatar_url, business_name, locale, plan, quota_daily,
    case when quota_reset_at < current_date then 0 else quota_used end,
    quota_reset_at, created_at, updated_at;
`

const QSelectProfile = `--sql ce5e7e02-388f-4ff2-a441-b7c47bbeb72d
select id, email, full_name, avatar_url, business_name, locale, plan, quota_daily,
    case when quota_reset_at < current_date then 0 else quota_used end,
    quota_reset_at, created_at, updated_at
from profiles
where id = $1::uuid
limit 1;
`

const QUpdateProfile = `--sql 2cef0601-cd92-45b4-abc1-2e8d9b8c13ad
update profiles
set full_name = coalesce($2::text, full_name),
    avatar_url = coalesce($3::text, avatar_url),
    business_name = coalesce($4::text, business_name),
    locale = coalesce($5::text, locale),
    updated_at = now()
where id = $1::uuid
returning id, email, full_name, avatar_url, business_name, locale, plan, quota_daily,
    case when quota_reset_at < current_date then 0 else quota_used end,
    quota_reset_at, created_at, updated_at;
`

const QConsumeQuota = `--sql 6f7af15b-55fd-47af-8d41-10aeed03ee77
update profiles
set quota_used = case when quota_reset_at < current_date then $2::int else quota_used + $2::int end,
    quota_reset_at = current_date,
    updated_at = now()
where id = $1::uuid
  and (case when quota_reset_at < current_date then 0 else quota_used end) + $2::int <= quota_daily
returning quota_daily - quota_used;
`

const QRefundQuota = `--sql 3c9e0d52-8a41-4f6b-b7e2-51d0c6a4f918
update profiles
set quota_used = greatest(quota_used - $2::int, 0),
    updated_at = now()
where id = $1::uuid
  and quota_reset_at = current_date;
`

const QSetProfilePlan = `--sql e02b9ff7-023e-424a-acef-672c07c28a1c
update profiles
set plan = $2::text,
    quota_daily = $3::int,
    updated_at = now()
where lower(email) = lower($1::text)
returning id, email, full_name, avatar_url, business_name, locale, plan, quota_daily,
    case when quota_reset_at < current_date then 0 else quota_used end,
    quota_reset_at, created_at, updated_at;
`
